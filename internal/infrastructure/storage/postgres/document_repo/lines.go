package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/infrastructure/storage/postgres"
)

const linesTable = "movement_lines"

var lineColumns = postgres.ExtractDBColumns[movement.Line]()

// Compile-time check.
var _ movement.LineSet = (*LineRepo)(nil)

// LineRepo implements movement.LineSet. Lines are replaced wholesale with
// COPY; there is no per-line update.
type LineRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewLineRepo creates a line repository.
func NewLineRepo(txManager *postgres.TxManager) *LineRepo {
	return &LineRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ReplaceAll implements movement.LineSet.
func (r *LineRepo) ReplaceAll(ctx context.Context, documentID id.ID, lines []movement.Line) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.DeleteAll(ctx, documentID); err != nil {
			return err
		}

		rows := make([][]any, len(lines))
		for i, l := range lines {
			l.DocumentID = documentID
			rows[i] = lineRow(l)
		}
		if _, err := r.inserter.CopyFromSlice(ctx, linesTable, lineColumns, rows); err != nil {
			return fmt.Errorf("copy lines: %w", postgres.ClassifyError(err))
		}
		return nil
	})
}

// lineRow orders values as lineColumns.
func lineRow(l movement.Line) []any {
	data := postgres.StructToMap(l)
	row := make([]any, len(lineColumns))
	for i, col := range lineColumns {
		row[i] = data[col]
	}
	return row
}

// ListFor implements movement.LineSet.
func (r *LineRepo) ListFor(ctx context.Context, documentID id.ID) ([]movement.Line, error) {
	sql, args, err := r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"document_id": documentID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []movement.Line
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("list lines: %w", postgres.ClassifyError(err))
	}
	return lines, nil
}

// DeleteAll implements movement.LineSet.
func (r *LineRepo) DeleteAll(ctx context.Context, documentID id.ID) error {
	sql, args, err := r.builder.Delete(linesTable).
		Where(squirrel.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete lines: %w", postgres.ClassifyError(err))
	}
	return nil
}

// SumByProduct implements movement.LineSet.
func (r *LineRepo) SumByProduct(ctx context.Context, tenantID string, productID id.ID) (int64, int64, error) {
	sql, args, err := r.sumQuery(tenantID, productID).ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build query: %w", err)
	}

	var inward, outward int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&inward, &outward); err != nil {
		return 0, 0, fmt.Errorf("sum lines: %w", postgres.ClassifyError(err))
	}
	return inward, outward, nil
}

func (r *LineRepo) sumQuery(tenantID string, productID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(
		"COALESCE(SUM(l.qty) FILTER (WHERE d.direction = 'inward'), 0)::bigint",
		"COALESCE(SUM(l.qty) FILTER (WHERE d.direction = 'outward'), 0)::bigint",
	).
		From(linesTable + " l").
		Join(documentsTable + " d ON d.id = l.document_id").
		Where(squirrel.Eq{
			"d.status":     string(movement.StatusActive),
			"d.tenant_id":  tenantID,
			"l.product_id": productID,
		})
}
