package order

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrOrderNotFound is returned when no pending order exists for a buyer.
// A racing resolver observing this error must perform no further side effects.
var ErrOrderNotFound = errors.New("order: no pending order for buyer")

// PendingStore holds at most one in-flight order per buyer. Every operation
// is atomic with respect to the others, so read-modify-write sequences never
// race with a concurrent Take or Put for the same key.
type PendingStore struct {
	mu     sync.Mutex
	orders map[int64]PendingOrder
}

// NewPendingStore constructs an empty in-memory pending order store.
func NewPendingStore() *PendingStore {
	return &PendingStore{orders: make(map[int64]PendingOrder)}
}

// Put stores the order, unconditionally replacing any prior record for the
// same buyer. Returns true when a prior order was replaced.
func (s *PendingStore) Put(o PendingOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.orders[o.BuyerID]
	s.orders[o.BuyerID] = o
	return existed
}

// PutIfAbsent stores the order only when the buyer has no pending order and
// reports whether it was stored. Restoring a previously taken order goes
// through here so a newer order the buyer started meanwhile is not clobbered.
func (s *PendingStore) PutIfAbsent(o PendingOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.BuyerID]; exists {
		return false
	}
	s.orders[o.BuyerID] = o
	return true
}

// Get returns a copy of the buyer's pending order if one exists.
func (s *PendingStore) Get(buyerID int64) (PendingOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[buyerID]
	return o, ok
}

// Remove deletes the buyer's pending order. Idempotent.
func (s *PendingStore) Remove(buyerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, buyerID)
}

// Take atomically removes and returns the buyer's pending order. Exactly one
// of several concurrent callers observes ok == true.
func (s *PendingStore) Take(buyerID int64) (PendingOrder, bool) {
	return s.TakeIf(buyerID, nil)
}

// TakeIf atomically removes and returns the buyer's order when pred accepts
// it. The check and the delete happen under one critical section, which makes
// first-writer-wins resolution an explicit claim instead of a call-order
// accident.
func (s *PendingStore) TakeIf(buyerID int64, pred func(PendingOrder) bool) (PendingOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[buyerID]
	if !ok {
		return PendingOrder{}, false
	}
	if pred != nil && !pred(o) {
		return PendingOrder{}, false
	}
	delete(s.orders, buyerID)
	return o, true
}

// Update runs fn on the buyer's order under the store lock and persists the
// result when fn succeeds. Returns ErrOrderNotFound when the buyer has no
// pending order.
func (s *PendingStore) Update(buyerID int64, fn func(*PendingOrder) error) (PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[buyerID]
	if !ok {
		return PendingOrder{}, ErrOrderNotFound
	}
	if err := fn(&o); err != nil {
		return PendingOrder{}, err
	}
	s.orders[buyerID] = o
	return o, nil
}

// TakeExpired atomically removes and returns the orders created before the
// given cutoff whose state allows eviction. Orders awaiting a provider
// callback or an admin verdict are kept: the payment may already be
// committed, and dropping the record would strand a success callback.
func (s *PendingStore) TakeExpired(cutoff time.Time) []PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []PendingOrder
	for id, o := range s.orders {
		if o.State.Expirable() && o.CreatedAt.Before(cutoff) {
			expired = append(expired, o)
			delete(s.orders, id)
		}
	}
	return expired
}

// All returns a snapshot of every in-flight order, sorted by creation time.
func (s *PendingStore) All() []PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of in-flight orders.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
