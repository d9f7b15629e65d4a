package ordersync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"orderfeed/internal/model"
	"orderfeed/internal/socketio"
)

const waitTimeout = 2 * time.Second

// fakeConn is a push session fed by the test.
type fakeConn struct {
	events chan socketio.Event
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan socketio.Event, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadEvent() (socketio.Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case err := <-f.fail:
		return socketio.Event{}, err
	case <-f.closed:
		return socketio.Event{}, errors.New("use of closed connection")
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) push(name, payload string) {
	f.events <- socketio.Event{Name: name, Data: json.RawMessage(payload)}
}

type dialOutcome struct {
	conn *fakeConn
	err  error
}

// fakeDialer hands out scripted outcomes in order and blocks until one is queued.
type fakeDialer struct {
	outcomes chan dialOutcome
	mu       sync.Mutex
	tokens   []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{outcomes: make(chan dialOutcome, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	d.mu.Unlock()
	select {
	case o := <-d.outcomes:
		if o.err != nil {
			return nil, o.err
		}
		return o.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) accept() *fakeConn {
	c := newFakeConn()
	d.outcomes <- dialOutcome{conn: c}
	return c
}

func (d *fakeDialer) reject(err error) {
	d.outcomes <- dialOutcome{err: err}
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// recorder funnels every callback into channels the test can wait on.
type recorder struct {
	states    chan StateChange
	snapshots chan []model.Order
	created   chan model.Order
	statuses  chan StatusChange
	diags     chan Diagnostic
}

func newRecorder() *recorder {
	return &recorder{
		states:    make(chan StateChange, 64),
		snapshots: make(chan []model.Order, 64),
		created:   make(chan model.Order, 64),
		statuses:  make(chan StatusChange, 64),
		diags:     make(chan Diagnostic, 64),
	}
}

func (r *recorder) subscriber() Subscriber {
	return Subscriber{
		OnSnapshot:      func(orders []model.Order) { r.snapshots <- orders },
		OnCreated:       func(o model.Order) { r.created <- o },
		OnStatusChanged: func(ch StatusChange) { r.statuses <- ch },
		OnStateChange:   func(ch StateChange) { r.states <- ch },
		OnDiagnostic:    func(d Diagnostic) { r.diags <- d },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// waitState skips transitions until one into want arrives.
func waitState(t *testing.T, r *recorder, want State) StateChange {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ch := <-r.states:
			if ch.To == want {
				return ch
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %+v", what, v)
	case <-time.After(50 * time.Millisecond):
	}
}

func orderJSON(id, status string) string {
	b, _ := json.Marshal(testOrder(id, status))
	return string(b)
}

func testOrder(id, status string) model.Order {
	o := model.Order{ID: "mongo-" + id, OrderID: id, Status: status}
	members := map[string]any{
		"address": map[string]any{"contactName": "Contact " + id, "contactPhone": "98450" + id, "houseNo": "12",
			"area": "MG Road", "city": "Bengaluru", "state": "KA", "pincode": 560001},
		"items":   []map[string]any{{"name": "Widget", "quantity": 2, "price": 150}},
		"pricing": map[string]any{"subtotal": 300, "deliveryFee": 20, "tax": 15, "grandTotal": 335},
	}
	for k, v := range members {
		if err := o.Set(k, v); err != nil {
			panic(err)
		}
	}
	return o
}

func orderIDs(orders []model.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.OrderID)
	}
	return out
}

func newTestClient(t *testing.T, d Dialer, opts ...Option) (*Client, *recorder) {
	t.Helper()
	opts = append([]Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	c := New(d, opts...)
	r := newRecorder()
	c.Subscribe(r.subscriber())
	t.Cleanup(c.Stop)
	return c, r
}
