package ordersync

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
	// Unauthorized is terminal until Start is called again with a new token.
	Unauthorized
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// StateChange is delivered on every transition. Err is set for transitions
// into Error and Unauthorized.
type StateChange struct {
	From State
	To   State
	Err  error
}
