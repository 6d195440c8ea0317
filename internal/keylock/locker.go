// Package keylock serializes work on a string key: in-process for a single
// instance, or through Redis when several instances share a database.
package keylock

import (
	"context"
	"errors"
)

// ErrNotObtained is returned when a lock could not be acquired before the
// context ended or the retry budget ran out.
var ErrNotObtained = errors.New("keylock: lock not obtained")

// Unlock releases a held lock. It is safe to call once.
type Unlock func(ctx context.Context) error

// Locker acquires exclusive locks by key.
type Locker interface {
	// Lock blocks until the key is held, ctx ends, or the backend gives up.
	Lock(ctx context.Context, key string) (Unlock, error)
}
