package memory

import (
	"context"
	"sync"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

// Journal implements movement.Journal as an append-only slice.
type Journal struct {
	mu      sync.RWMutex
	entries []movement.JournalEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record implements movement.Journal.
func (j *Journal) Record(ctx context.Context, entry movement.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
	return nil
}

// History implements movement.Journal, newest first.
func (j *Journal) History(ctx context.Context, tenantID string, documentID id.ID, limit int) ([]movement.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []movement.JournalEntry
	for i := len(j.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := j.entries[i]
		if e.TenantID == tenantID && e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
