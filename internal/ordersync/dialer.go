package ordersync

import (
	"context"

	"go.uber.org/zap"

	"orderfeed/internal/socketio"
)

// Conn is an established push session.
type Conn interface {
	ReadEvent() (socketio.Event, error)
	Close() error
}

// Dialer opens a push session. It must honor ctx.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, token string) (Conn, error) { return f(ctx, token) }

// SocketDialer connects to a Socket.IO backend over websocket.
type SocketDialer struct {
	URL       string
	Namespace string
	Logger    *zap.Logger
}

func (d SocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	c, err := socketio.Dial(ctx, d.URL, socketio.Options{
		Token:     token,
		Namespace: d.Namespace,
		Logger:    d.Logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
