package ordersync

import (
	"errors"
	"fmt"

	"orderfeed/internal/socketio"
)

var (
	// ErrAlreadyStarted is returned by Start while a previous Start is still running.
	ErrAlreadyStarted = errors.New("ordersync: client already started")
	// ErrConnectTimeout drives Connecting -> Error when the handshake takes too long.
	ErrConnectTimeout = errors.New("ordersync: connect timeout")
	// ErrUnauthorized drives Connecting -> Unauthorized. Dialers may return it
	// directly or wrap it.
	ErrUnauthorized = socketio.ErrUnauthorized
	// ErrStaleUpdate marks a status change for an order the client does not hold.
	ErrStaleUpdate = errors.New("ordersync: status update for unknown order")
	// ErrDuplicateOrder marks a created event for an order already held.
	ErrDuplicateOrder = errors.New("ordersync: order already present")
)

// MalformedEventError describes a push event that could not be applied.
type MalformedEventError struct {
	Event string
	Err   error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("ordersync: malformed %s event: %v", e.Event, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }
