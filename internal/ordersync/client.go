// Package ordersync keeps a canonical, duplicate-free order list in step with
// a push backend: a snapshot on every (re)connect followed by created and
// status-changed events.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"orderfeed/internal/model"
	"orderfeed/internal/state"
	"orderfeed/internal/view"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	backoffJitterPercent  = 20
)

// EventNames maps the three logical events onto wire event names.
type EventNames struct {
	Snapshot      string
	Created       string
	StatusChanged string
}

// DefaultEventNames are the names the dashboard backend emits.
var DefaultEventNames = EventNames{
	Snapshot:      "orders:init",
	Created:       "orders:new",
	StatusChanged: "orders:status",
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithBackoff sets the first reconnect delay and its cap.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if max >= c.backoffBase {
			c.backoffMax = max
		}
	}
}

func WithEventNames(n EventNames) Option {
	return func(c *Client) { c.events = n }
}

// WithStore replaces the in-memory canonical list.
func WithStore(s state.Store) Option {
	return func(c *Client) {
		if s != nil {
			c.store = s
		}
	}
}

// Client owns one push connection and the canonical order list.
//
// Start and Stop may be called from any goroutine except subscriber callbacks.
// CurrentOrders, State, Counts, Subscribe and Unsubscribe never block on the
// network.
type Client struct {
	dialer         Dialer
	log            *zap.Logger
	store          state.Store
	validate       *validator.Validate
	events         EventNames
	connectTimeout time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	subsMu sync.RWMutex
	subs   []subscription
}

func New(d Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:         d,
		log:            zap.NewNop(),
		store:          state.NewInMemoryStore(),
		validate:       validator.New(),
		events:         DefaultEventNames,
		connectTimeout: DefaultConnectTimeout,
		backoffBase:    DefaultBackoffBase,
		backoffMax:     DefaultBackoffMax,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins connecting in the background with token attached. An empty
// token connects unauthenticated. It fails with ErrAlreadyStarted unless the
// client is stopped or parked in Unauthorized.
func (c *Client) Start(token string) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if c.running() {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.log.Info("order sync starting", zap.Bool("authenticated", token != ""))
	go c.run(ctx, token, done)
	return nil
}

// Stop tears the connection down and cancels any pending connect or backoff.
// When it returns no further callbacks will run. Calling it again is a no-op.
func (c *Client) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if c.transition(Disconnected, nil) {
		c.log.Info("order sync stopped")
	}
}

// running reports whether the event goroutine is alive. c.mu must be held.
func (c *Client) running() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Subscribe registers callbacks and returns an id for Unsubscribe.
func (c *Client) Subscribe(s Subscriber) string {
	id := uuid.NewString()
	c.subsMu.Lock()
	c.subs = append(c.subs, subscription{id: id, sub: s})
	c.subsMu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (c *Client) Unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// CurrentOrders is a point-in-time copy of the canonical list, newest first.
func (c *Client) CurrentOrders() []model.Order {
	return c.store.List()
}

// Counts reduces the current list by status.
func (c *Client) Counts() view.Counts {
	return view.CountByStatus(c.store.List())
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition records the new state and notifies subscribers.
// It reports false when the client was already in that state.
func (c *Client) transition(to State, err error) bool {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()

	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
	if err != nil {
		fields = append(fields, zap.Error(err))
		c.log.Warn("connection state changed", fields...)
	} else {
		c.log.Info("connection state changed", fields...)
	}
	ch := StateChange{From: from, To: to, Err: err}
	for _, s := range c.subscribers() {
		if s.OnStateChange != nil {
			s.OnStateChange(ch)
		}
	}
	return true
}

func (c *Client) subscribers() []Subscriber {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]Subscriber, len(c.subs))
	for i, s := range c.subs {
		out[i] = s.sub
	}
	return out
}

func (c *Client) newBackoff() retry.Backoff {
	b := retry.NewExponential(c.backoffBase)
	b = retry.WithJitterPercent(backoffJitterPercent, b)
	return retry.WithCappedDuration(c.backoffMax, b)
}

// run is the single event goroutine: every list mutation and every callback
// after Start happens here.
func (c *Client) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	backoff := c.newBackoff()
	for {
		c.transition(Connecting, nil)
		conn, err := c.connect(ctx, token)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.transition(Unauthorized, err)
				return
			}
			c.transition(Error, err)
			if !c.sleep(ctx, backoff) {
				return
			}
			continue
		}

		backoff = c.newBackoff()
		c.transition(Connected, nil)
		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.transition(Error, err)
		if !c.sleep(ctx, backoff) {
			return
		}
	}
}

type dialResult struct {
	conn Conn
	err  error
}

// connect dials with the connect timeout. A dialer that ignores ctx is
// abandoned at the deadline and its late connection closed.
func (c *Client) connect(ctx context.Context, token string) (Conn, error) {
	cctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	res := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(cctx, token)
		res <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s: %w", ErrConnectTimeout, c.connectTimeout, r.err)
			}
			return nil, r.err
		}
		if ctx.Err() != nil {
			_ = r.conn.Close()
			return nil, ctx.Err()
		}
		return r.conn, nil
	case <-cctx.Done():
		go func() {
			if r := <-res; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, c.connectTimeout)
	}
}

// consume applies events until the connection fails or ctx is canceled.
func (c *Client) consume(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		ev, err := conn.ReadEvent()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		c.handle(ev.Name, ev.Data)
	}
}

// sleep waits for the next backoff delay. It reports false if ctx ended first.
func (c *Client) sleep(ctx context.Context, b retry.Backoff) bool {
	d, _ := b.Next()
	c.log.Debug("reconnect scheduled", zap.Duration("delay", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
