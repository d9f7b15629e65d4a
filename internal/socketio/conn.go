package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned when the handshake is rejected with 401/403
	// or the namespace connect is refused by the server.
	ErrUnauthorized = errors.New("socketio: unauthorized")
	// ErrServerDisconnect is returned by ReadEvent when the server closes the session.
	ErrServerDisconnect = errors.New("socketio: server disconnect")
)

// ConnectError carries the message of a connect_error packet.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return "socketio: connect refused: " + e.Message
}

func (e *ConnectError) Unwrap() error { return ErrUnauthorized }

// Options configure Dial.
type Options struct {
	// Token is sent as a bearer header and in the connect packet auth. Empty means none.
	Token     string
	Namespace string
	Header    http.Header
	Dialer    *websocket.Dialer
	Logger    *zap.Logger
}

type handshake struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
	MaxPayload   int64  `json:"maxPayload"`
}

// Conn is an established Socket.IO session on one namespace.
// ReadEvent must be called from a single goroutine; Close may be called from any.
type Conn struct {
	ws        *websocket.Conn
	log       *zap.Logger
	namespace string
	sid       string
	deadline  time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// EndpointURL turns an API base URL into the websocket transport URL.
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("socketio: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the websocket, completes the Engine.IO handshake and connects
// to the namespace. ctx bounds the whole sequence.
func Dial(ctx context.Context, baseURL string, opts Options) (*Conn, error) {
	endpoint, err := EndpointURL(baseURL)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "/"
	}
	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("socketio: dial %s: %w", endpoint, err)
	}

	c := &Conn{ws: ws, log: log, namespace: ns}
	// unblock handshake reads if ctx ends first
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	err = c.handshake(ctx, opts.Token)
	if !stop() || err != nil {
		_ = ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context, token string) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
	}
	open, err := c.readPacket()
	if err != nil {
		return fmt.Errorf("socketio: read open: %w", err)
	}
	if open.Kind != KindOpen {
		return fmt.Errorf("socketio: expected open packet, got %s", open.Kind)
	}
	var hs handshake
	if err := json.Unmarshal(open.Data, &hs); err != nil {
		return fmt.Errorf("socketio: open payload: %w", err)
	}
	c.sid = hs.SID
	c.deadline = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond

	connect := Packet{Kind: KindConnect, Namespace: c.namespace, ID: -1}
	if token != "" {
		auth, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			return fmt.Errorf("socketio: encode auth: %w", err)
		}
		connect.Data = auth
	}
	if err := c.write(EncodePacket(connect)); err != nil {
		return fmt.Errorf("socketio: send connect: %w", err)
	}

	for {
		p, err := c.readPacket()
		if err != nil {
			return fmt.Errorf("socketio: await connect: %w", err)
		}
		switch p.Kind {
		case KindPing:
			if err := c.write(EncodePacket(Packet{Kind: KindPong})); err != nil {
				return fmt.Errorf("socketio: pong: %w", err)
			}
		case KindConnect:
			if p.Namespace != c.namespace {
				continue
			}
			c.log.Debug("socket.io connected", zap.String("sid", c.sid), zap.String("namespace", c.namespace))
			return c.refreshDeadline()
		case KindConnectError:
			var body struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(p.Data, &body)
			if body.Message == "" {
				body.Message = strings.Trim(string(p.Data), `"`)
			}
			return &ConnectError{Message: body.Message}
		case KindClose:
			return ErrServerDisconnect
		}
	}
}

// ReadEvent blocks until the next event on the namespace. Pings are answered
// inline. A missed heartbeat surfaces as a read timeout error.
func (c *Conn) ReadEvent() (Event, error) {
	for {
		p, err := c.readPacket()
		if err != nil {
			return Event{}, err
		}
		if err := c.refreshDeadline(); err != nil {
			return Event{}, err
		}
		switch p.Kind {
		case KindPing:
			if err := c.write(EncodePacket(Packet{Kind: KindPong})); err != nil {
				return Event{}, fmt.Errorf("socketio: pong: %w", err)
			}
		case KindClose:
			return Event{}, ErrServerDisconnect
		case KindDisconnect:
			if p.Namespace == c.namespace {
				return Event{}, ErrServerDisconnect
			}
		case KindEvent:
			if p.Namespace != c.namespace {
				continue
			}
			ev, err := DecodeEvent(p.Data)
			if err != nil {
				c.log.Warn("dropping undecodable event frame", zap.Error(err))
				continue
			}
			return ev, nil
		}
	}
}

// SID is the Engine.IO session id.
func (c *Conn) SID() string { return c.sid }

// Close sends a namespace disconnect and closes the socket. Safe to call twice.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.write(EncodePacket(Packet{Kind: KindDisconnect, Namespace: c.namespace, ID: -1}))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) readPacket() (Packet, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return Packet{}, err
	}
	if mt != websocket.TextMessage {
		return Packet{Kind: KindNoop, ID: -1}, nil
	}
	return DecodePacket(string(data))
}

func (c *Conn) refreshDeadline() error {
	if c.deadline <= 0 {
		return c.ws.SetReadDeadline(time.Time{})
	}
	return c.ws.SetReadDeadline(time.Now().Add(c.deadline))
}

func (c *Conn) write(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}
