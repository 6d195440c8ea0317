package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

const journalTable = "movement_journal"

// CompressionAlgo specifies how journal changes are stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// journalChanges is the JSON body of a journal row.
type journalChanges struct {
	Before []movement.Line  `json:"before,omitempty"`
	After  []movement.Line  `json:"after,omitempty"`
	Deltas map[string]int64 `json:"deltas,omitempty"`
}

type journalRow struct {
	ID                id.ID           `db:"id"`
	TenantID          string          `db:"tenant_id"`
	DocumentID        *id.ID          `db:"document_id"`
	Direction         string          `db:"direction"`
	Operation         string          `db:"operation"`
	ActorID           string          `db:"actor_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Journal implements movement.Journal. Line snapshots above the threshold are
// stored zstd-compressed.
type Journal struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewJournal creates a journal writer.
func NewJournal(txManager *TxManager) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Journal{
		txManager:         txManager,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// Record implements movement.Journal.
func (j *Journal) Record(ctx context.Context, entry movement.JournalEntry) error {
	row, err := j.encode(entry)
	if err != nil {
		return err
	}

	sql, args, err := j.builder.Insert(journalTable).SetMap(StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := j.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert journal: %w", ClassifyError(err))
	}
	return nil
}

// History implements movement.Journal, newest first.
func (j *Journal) History(ctx context.Context, tenantID string, documentID id.ID, limit int) ([]movement.JournalEntry, error) {
	q := j.builder.Select(ExtractDBColumns[journalRow]()...).
		From(journalTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "document_id": documentID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []journalRow
	if err := pgxscan.Select(ctx, j.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal: %w", ClassifyError(err))
	}

	out := make([]movement.JournalEntry, 0, len(rows))
	for _, r := range rows {
		e, err := j.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *Journal) encode(entry movement.JournalEntry) (journalRow, error) {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	changes, err := json.Marshal(journalChanges{Before: entry.Before, After: entry.After, Deltas: entry.Deltas})
	if err != nil {
		return journalRow{}, fmt.Errorf("marshal changes: %w", err)
	}

	row := journalRow{
		ID:              entry.ID,
		TenantID:        entry.TenantID,
		Direction:       string(entry.Direction),
		Operation:       string(entry.Operation),
		ActorID:         entry.ActorID,
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.CreatedAt,
	}
	if !id.IsNil(entry.DocumentID) {
		docID := entry.DocumentID
		row.DocumentID = &docID
	}
	if len(changes) > j.compressThreshold {
		row.ChangesCompressed = j.encoder.EncodeAll(changes, nil)
		row.Changes = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row, nil
}

func (j *Journal) decode(r journalRow) (movement.JournalEntry, error) {
	raw := []byte(r.Changes)
	if r.CompressionAlgo == CompressionZstd && len(r.ChangesCompressed) > 0 {
		var err error
		raw, err = j.decoder.DecodeAll(r.ChangesCompressed, nil)
		if err != nil {
			return movement.JournalEntry{}, fmt.Errorf("decompress changes: %w", err)
		}
	}

	var changes journalChanges
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &changes); err != nil {
			return movement.JournalEntry{}, fmt.Errorf("unmarshal changes: %w", err)
		}
	}

	e := movement.JournalEntry{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Direction: movement.Direction(r.Direction),
		Operation: movement.Operation(r.Operation),
		ActorID:   r.ActorID,
		Before:    changes.Before,
		After:     changes.After,
		Deltas:    changes.Deltas,
		CreatedAt: r.CreatedAt,
	}
	if r.DocumentID != nil {
		e.DocumentID = *r.DocumentID
	}
	return e, nil
}
