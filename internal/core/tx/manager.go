// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; implementations live in
// infrastructure/storage.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Atomicity is implemented by managers that can report whether a rollback
// really undoes every write made inside fn.
type Atomicity interface {
	Atomic() bool
}

// IsAtomic reports whether rolling back m undoes all writes. Managers that do not
// implement Atomicity are treated as non-atomic, so callers compensate explicitly.
func IsAtomic(m Manager) bool {
	a, ok := m.(Atomicity)
	return ok && a.Atomic()
}

// NopManager runs fn directly. Writes made before a failure stay applied.
type NopManager struct{}

// RunInTransaction implements Manager.
func (NopManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Atomic implements Atomicity.
func (NopManager) Atomic() bool { return false }
