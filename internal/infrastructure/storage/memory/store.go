// Package memory is an in-process storage backend for development and tests.
//
// It has no transactions: writes are visible immediately and a failed
// operation is undone by the engine's compensations, so intermediate states
// may be observed by concurrent readers.
package memory

import (
	"templestock/internal/core/tx"
)

// Store bundles the memory repositories.
type Store struct {
	Products  *Products
	Movements *Movements
	Journal   *Journal
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Products:  NewProducts(),
		Movements: NewMovements(),
		Journal:   NewJournal(),
	}
}

// TxManager returns the manager to pair with this backend. It is not atomic.
func (s *Store) TxManager() tx.Manager {
	return tx.NopManager{}
}
