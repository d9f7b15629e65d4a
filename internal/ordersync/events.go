package ordersync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orderfeed/internal/model"
)

var errEmptyPayload = errors.New("empty payload")

// handle applies one push event. Only called from the event goroutine.
func (c *Client) handle(name string, data json.RawMessage) {
	switch name {
	case c.events.Snapshot:
		c.applySnapshot(name, data)
	case c.events.Created:
		c.applyCreated(name, data)
	case c.events.StatusChanged:
		c.applyStatus(name, data)
	default:
		c.log.Debug("ignoring unknown event", zap.String("event", name))
	}
}

func (c *Client) applySnapshot(name string, data json.RawMessage) {
	if isEmpty(data) {
		c.malformed(name, "", errEmptyPayload)
		return
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		c.malformed(name, "", err)
		return
	}
	orders := make([]model.Order, 0, len(raw))
	for i, r := range raw {
		o, err := c.decodeOrder(r)
		if err != nil {
			c.malformed(name, o.OrderID, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		orders = append(orders, o)
	}
	dropped := c.store.Replace(orders)
	if dropped > 0 {
		c.diagnose(Diagnostic{
			Kind:  DiagDuplicate,
			Event: name,
			Err:   fmt.Errorf("%w: %d repeated entries in snapshot", ErrDuplicateOrder, dropped),
		})
	}
	list := c.store.List()
	c.log.Info("snapshot applied", zap.Int("orders", len(list)), zap.Int("dropped", dropped))
	for _, s := range c.subscribers() {
		if s.OnSnapshot != nil {
			s.OnSnapshot(model.CloneAll(list))
		}
	}
}

func (c *Client) applyCreated(name string, data json.RawMessage) {
	o, err := c.decodeOrder(data)
	if err != nil {
		c.malformed(name, o.OrderID, err)
		return
	}
	if !c.store.Insert(o) {
		c.log.Debug("duplicate created event", zap.String("order_id", o.OrderID))
		c.diagnose(Diagnostic{Kind: DiagDuplicate, Event: name, OrderID: o.OrderID, Err: ErrDuplicateOrder})
		return
	}
	c.log.Debug("order created", zap.String("order_id", o.OrderID), zap.String("status", o.Status))
	for _, s := range c.subscribers() {
		if s.OnCreated != nil {
			s.OnCreated(o.Clone())
		}
	}
}

func (c *Client) applyStatus(name string, data json.RawMessage) {
	if isEmpty(data) {
		c.malformed(name, "", errEmptyPayload)
		return
	}
	var u model.StatusUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		c.malformed(name, "", err)
		return
	}
	if err := c.validate.Struct(u); err != nil {
		c.malformed(name, u.OrderID, err)
		return
	}
	prev, ok := c.store.Get(u.OrderID)
	if !ok {
		c.log.Warn("stale status update", zap.String("order_id", u.OrderID), zap.String("status", u.Status))
		c.diagnose(Diagnostic{
			Kind:    DiagStaleUpdate,
			Event:   name,
			OrderID: u.OrderID,
			Err:     fmt.Errorf("%w: %s", ErrStaleUpdate, u.OrderID),
		})
		return
	}
	updated, _ := c.store.SetStatus(u.OrderID, u.Status)
	c.log.Debug("order status changed",
		zap.String("order_id", u.OrderID),
		zap.String("from", prev.Status),
		zap.String("to", u.Status))
	ch := StatusChange{OrderID: u.OrderID, Previous: prev.Status, Status: u.Status}
	for _, s := range c.subscribers() {
		if s.OnStatusChanged != nil {
			ch.Order = updated.Clone()
			s.OnStatusChanged(ch)
		}
	}
}

// decodeOrder parses and validates a single order. The returned order carries
// whatever OrderID could be read, for diagnostics.
func (c *Client) decodeOrder(data json.RawMessage) (model.Order, error) {
	if isEmpty(data) {
		return model.Order{}, errEmptyPayload
	}
	var o model.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return model.Order{}, err
	}
	if err := c.validate.Struct(o); err != nil {
		return o, err
	}
	return o, nil
}

func (c *Client) malformed(event, orderID string, err error) {
	merr := &MalformedEventError{Event: event, Err: err}
	c.log.Warn("dropping malformed event", zap.String("event", event), zap.Error(err))
	c.diagnose(Diagnostic{Kind: DiagMalformed, Event: event, OrderID: orderID, Err: merr})
}

func (c *Client) diagnose(d Diagnostic) {
	for _, s := range c.subscribers() {
		if s.OnDiagnostic != nil {
			s.OnDiagnostic(d)
		}
	}
}

func isEmpty(data json.RawMessage) bool {
	t := bytes.TrimSpace(data)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
