package state

import (
	"fmt"
	"sync"

	"orderfeed/internal/model"
)

// Store abstracts the canonical order list.
// Orders are unique by OrderID and listed newest first.
type Store interface {
	Replace(orders []model.Order) (dropped int)
	Insert(o model.Order) (inserted bool)
	SetStatus(orderID string, status string) (updated model.Order, ok bool)
	Get(orderID string) (model.Order, bool)
	List() []model.Order
	Len() int
	Range(fn func(o model.Order) error) error
}

// InMemoryStore is a thread-safe order list. Internally orders are kept
// oldest first so inserts are appends and positions in index stay valid.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders []model.Order
	index  map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// Replace swaps the whole list for the given newest-first snapshot.
// A repeated OrderID keeps its first occurrence; the rest are dropped and counted.
func (s *InMemoryStore) Replace(orders []model.Order) int {
	next, idx := rebuild(orders)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = next
	s.index = idx
	return len(orders) - len(next)
}

// rebuild converts a newest-first list into the oldest-first backing slice.
func rebuild(orders []model.Order) ([]model.Order, map[string]int) {
	seen := make(map[string]struct{}, len(orders))
	newestFirst := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.OrderID]; ok {
			continue
		}
		seen[o.OrderID] = struct{}{}
		newestFirst = append(newestFirst, o)
	}
	next := make([]model.Order, 0, len(newestFirst))
	idx := make(map[string]int, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		idx[newestFirst[i].OrderID] = len(next)
		next = append(next, newestFirst[i].Clone())
	}
	return next, idx
}

// Insert adds o as the newest order unless its OrderID is already held.
func (s *InMemoryStore) Insert(o model.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[o.OrderID]; ok {
		return false
	}
	s.index[o.OrderID] = len(s.orders)
	s.orders = append(s.orders, o.Clone())
	return true
}

// SetStatus changes only the status field of the matching order.
func (s *InMemoryStore) SetStatus(orderID string, status string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.index[orderID]
	if !ok {
		return model.Order{}, false
	}
	s.orders[at].Status = status
	return s.orders[at].Clone(), true
}

func (s *InMemoryStore) Get(orderID string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.index[orderID]
	if !ok {
		return model.Order{}, false
	}
	return s.orders[at].Clone(), true
}

// List returns a point-in-time copy, newest first.
func (s *InMemoryStore) List() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0, len(s.orders))
	for i := len(s.orders) - 1; i >= 0; i-- {
		out = append(out, s.orders[i].Clone())
	}
	return out
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Range visits orders newest first under the read lock.
func (s *InMemoryStore) Range(fn func(o model.Order) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		if err := fn(s.orders[i].Clone()); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}
