package movement

import (
	"context"
	"time"

	"templestock/internal/core/id"
)

// Operation recorded in the journal.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpRepair Operation = "repair"
)

// JournalEntry records what an operation did to stock, so a document's history
// can be replayed during manual reconciliation.
type JournalEntry struct {
	ID         id.ID            `json:"id"`
	TenantID   string           `json:"tenantId"`
	DocumentID id.ID            `json:"documentId"`
	Direction  Direction        `json:"direction"`
	Operation  Operation        `json:"operation"`
	ActorID    string           `json:"actorId,omitempty"`
	Before     []Line           `json:"before,omitempty"`
	After      []Line           `json:"after,omitempty"`
	Deltas     map[string]int64 `json:"deltas,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Journal appends entries. Writes happen inside the operation's transaction.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	History(ctx context.Context, tenantID string, documentID id.ID, limit int) ([]JournalEntry, error)
}
