package ordersync

import "orderfeed/internal/model"

// DiagnosticKind classifies a non-fatal event problem.
type DiagnosticKind string

const (
	DiagMalformed   DiagnosticKind = "malformed"
	DiagStaleUpdate DiagnosticKind = "stale_update"
	DiagDuplicate   DiagnosticKind = "duplicate"
)

// Diagnostic reports an event that was dropped or ignored.
type Diagnostic struct {
	Kind    DiagnosticKind
	Event   string
	OrderID string
	Err     error
}

// StatusChange is delivered after a status update is applied.
type StatusChange struct {
	OrderID  string
	Previous string
	Status   string
	Order    model.Order
}

// Subscriber holds optional callbacks. Callbacks run on the client's event
// goroutine one at a time and must not call Start or Stop.
// Slices and orders passed in are private copies.
type Subscriber struct {
	OnSnapshot      func(orders []model.Order)
	OnCreated       func(o model.Order)
	OnStatusChanged func(ch StatusChange)
	OnStateChange   func(ch StateChange)
	OnDiagnostic    func(d Diagnostic)
}

type subscription struct {
	id  string
	sub Subscriber
}
