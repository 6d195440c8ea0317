package reconcile

import (
	"context"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/keylock"
	"templestock/pkg/logger"
)

// Key locks are always taken in the order document, reference, products (by
// id), so two operations can never wait on each other in a cycle. A product
// key is taken before its row is read or adjusted.

func documentKey(tenantID string, docID id.ID) string {
	return "doc:" + tenantID + ":" + docID.String()
}

func referenceKey(tenantID string, direction movement.Direction, referenceNo string) string {
	return "ref:" + tenantID + ":" + string(direction) + ":" + referenceNo
}

// productKeys expects ids sorted, as returned by productIDs.
func productKeys(tenantID string, ids []id.ID) []string {
	keys := make([]string, len(ids))
	for i, pid := range ids {
		keys[i] = "product:" + tenantID + ":" + pid.String()
	}
	return keys
}

type heldLock struct {
	key    string
	unlock keylock.Unlock
}

// lockSet holds the key locks of one operation until release.
type lockSet struct {
	locker keylock.Locker
	held   []heldLock
	seen   map[string]struct{}
}

func newLockSet(locker keylock.Locker) *lockSet {
	return &lockSet{locker: locker, seen: make(map[string]struct{})}
}

// acquire locks keys in the given order. Keys already held are skipped.
func (s *lockSet) acquire(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := s.seen[key]; ok {
			continue
		}
		unlock, err := s.locker.Lock(ctx, key)
		if err != nil {
			return err
		}
		s.seen[key] = struct{}{}
		s.held = append(s.held, heldLock{key: key, unlock: unlock})
	}
	return nil
}

// release unlocks newest first. ctx should not be cancellable.
func (s *lockSet) release(ctx context.Context) {
	for i := len(s.held) - 1; i >= 0; i-- {
		h := s.held[i]
		if err := h.unlock(ctx); err != nil {
			logger.Warn(ctx, "release key lock", "key", h.key, "error", err)
		}
	}
	s.held = nil
	s.seen = make(map[string]struct{})
}
