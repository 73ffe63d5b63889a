/*
registry.go - Authoritative collection of tracked orders

PURPOSE:
  Owns the in-memory order list and keeps the persisted snapshot in step with
  it. Every mutation builds the next collection, writes it in full, and only
  then replaces the in-memory list. A failed write leaves both unchanged.

INVARIANTS:
  - OrderNumber is unique and digits only
  - SapNumber, once set, is never changed or cleared
  - A resolved order keeps status resolved
  - WarnedStale only moves from false to true

CONCURRENCY:
  A mutex guards the list; the snapshot is written while holding it so two
  writers never interleave their snapshots.

LOAD FAILURES:
  A missing or malformed snapshot leaves an empty registry; the failure is
  logged, never returned.
*/
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Registry is the authoritative order collection.
type Registry struct {
	store KVStore
	now   func() time.Time

	mu     sync.Mutex
	orders []TrackedOrder
}

// NewRegistry creates an empty registry persisting to store.
func NewRegistry(store KVStore) *Registry {
	return &Registry{store: store, now: time.Now}
}

// SetClock replaces the time source used to stamp new orders.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Load replaces the in-memory collection with the persisted snapshot.
// Read or decode failures are logged and leave the registry empty.
func (r *Registry) Load(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = nil
	raw, err := r.store.Get(ctx, OrdersKey, "[]")
	if err != nil {
		log.Printf("[Registry] %v", &PersistenceReadError{Key: OrdersKey, Cause: err})
		return
	}
	var orders []TrackedOrder
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		log.Printf("[Registry] %v", &PersistenceReadError{Key: OrdersKey, Cause: err})
		return
	}

	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if o.OrderNumber == "" || seen[o.OrderNumber] {
			continue
		}
		seen[o.OrderNumber] = true
		r.orders = append(r.orders, o)
	}
	log.Printf("[Registry] Loaded %d tracked orders", len(r.orders))
}

// Add starts tracking orderNumber. The input is trimmed first.
func (r *Registry) Add(ctx context.Context, orderNumber string) (TrackedOrder, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if !isDigits(orderNumber) {
		return TrackedOrder{}, &ValidationError{OrderNumber: orderNumber, Err: ErrInvalidOrderNumber}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(orderNumber) >= 0 {
		return TrackedOrder{}, &ValidationError{OrderNumber: orderNumber, Err: ErrDuplicateOrder}
	}

	order := TrackedOrder{
		OrderNumber: orderNumber,
		Status:      StatusPending,
		AddedAt:     r.now(),
	}
	next := append(r.orders[:len(r.orders):len(r.orders)], order)
	if err := r.commitLocked(ctx, next); err != nil {
		return TrackedOrder{}, err
	}
	return order.clone(), nil
}

// Remove stops tracking orderNumber. Removing an unknown order is a no-op.
func (r *Registry) Remove(ctx context.Context, orderNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]TrackedOrder, 0, len(r.orders))
	for _, o := range r.orders {
		if o.OrderNumber != orderNumber {
			kept = append(kept, o)
		}
	}
	return r.commitLocked(ctx, kept)
}

// Update merges u into the existing record and persists. It returns false
// when the order is not tracked.
func (r *Registry) Update(ctx context.Context, orderNumber string, u OrderUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(orderNumber)
	if i < 0 {
		return false, nil
	}
	updated := r.orders[i].clone()
	o := &updated

	if u.SapNumber != nil && o.SapNumber == nil {
		sap := *u.SapNumber
		o.SapNumber = &sap
	}
	if u.Status != nil && !o.Status.IsTerminal() {
		o.Status = *u.Status
	}
	if o.SapNumber != nil {
		o.Status = StatusResolved
	}
	if u.LastCheckedAt != nil {
		o.LastCheckedAt = *u.LastCheckedAt
	}
	if u.WarnedStale != nil && *u.WarnedStale {
		o.WarnedStale = true
	}
	if u.LastError != nil {
		o.LastError = *u.LastError
	}

	next := make([]TrackedOrder, len(r.orders))
	copy(next, r.orders)
	next[i] = updated
	return true, r.commitLocked(ctx, next)
}

// Get returns a copy of the tracked order.
func (r *Registry) Get(orderNumber string) (TrackedOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(orderNumber)
	if i < 0 {
		return TrackedOrder{}, false
	}
	return r.orders[i].clone(), true
}

// List returns copies of all tracked orders in insertion order.
func (r *Registry) List() []TrackedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrackedOrder, len(r.orders))
	for i, o := range r.orders {
		out[i] = o.clone()
	}
	return out
}

// Len returns the number of tracked orders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *Registry) indexLocked(orderNumber string) int {
	for i, o := range r.orders {
		if o.OrderNumber == orderNumber {
			return i
		}
	}
	return -1
}

// commitLocked persists next and installs it as the current collection.
// On error the current collection is left as it was.
func (r *Registry) commitLocked(ctx context.Context, next []TrackedOrder) error {
	snapshot := next
	if snapshot == nil {
		snapshot = []TrackedOrder{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	if err := r.store.Set(ctx, OrdersKey, string(data)); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}
	r.orders = next
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
