package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Known order status labels. Status is an open set: the backend may send
// labels not listed here and they are carried through unchanged.
const (
	StatusPending   = "Pending"
	StatusDelivered = "Delivered"
	StatusCanceled  = "Canceled"
)

// KnownStatuses lists the labels the dashboard counts separately.
var KnownStatuses = []string{StatusPending, StatusDelivered, StatusCanceled}

const (
	keyID      = "_id"
	keyOrderID = "orderId"
	keyStatus  = "status"
)

// Order is the unit of synchronization. OrderID is the business key; ID is
// the backend's document id and only used for render identity.
//
// Everything else the backend sends (address, items, pricing and any member
// added later) is kept as raw JSON and written back as received.
type Order struct {
	ID      string
	OrderID string `validate:"required"`
	Status  string

	fields map[string]json.RawMessage
}

// UnmarshalJSON decodes the identity and status members and keeps the rest
// of the object untouched.
func (o *Order) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var next Order
	for key, dst := range map[string]*string{keyID: &next.ID, keyOrderID: &next.OrderID, keyStatus: &next.Status} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		delete(fields, key)
		if isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("order %s: %w", key, err)
		}
	}
	if len(fields) > 0 {
		next.fields = fields
	}
	*o = next
	return nil
}

// MarshalJSON writes the kept members back with the current identity and
// status laid over them.
func (o Order) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.fields)+3)
	for k, v := range o.fields {
		out[k] = v
	}
	if o.ID != "" {
		out[keyID] = o.ID
	}
	out[keyOrderID] = o.OrderID
	out[keyStatus] = o.Status
	return json.Marshal(out)
}

// Field returns a copy of the raw member stored under key, or nil.
func (o Order) Field(key string) json.RawMessage {
	var typed string
	switch key {
	case keyID:
		typed = o.ID
	case keyOrderID:
		typed = o.OrderID
	case keyStatus:
		typed = o.Status
	default:
		raw, ok := o.fields[key]
		if !ok {
			return nil
		}
		return bytes.Clone(raw)
	}
	b, _ := json.Marshal(typed)
	return b
}

// Set stores v under key. The identity and status keys must be strings and
// land in their typed fields.
func (o *Order) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("order %s: %w", key, err)
	}
	var dst *string
	switch key {
	case keyID:
		dst = &o.ID
	case keyOrderID:
		dst = &o.OrderID
	case keyStatus:
		dst = &o.Status
	default:
		if o.fields == nil {
			o.fields = make(map[string]json.RawMessage)
		}
		o.fields[key] = raw
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("order %s: %w", key, err)
	}
	return nil
}

// Clone returns a copy that shares no map with o. Raw members are never
// written in place so their bytes can be shared.
func (o Order) Clone() Order {
	c := o
	c.fields = maps.Clone(o.fields)
	return c
}

// StatusUpdate is the payload of a status change push event.
type StatusUpdate struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

// CloneAll deep-copies a list of orders.
func CloneAll(orders []Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
