// Package document_repo provides PostgreSQL repositories for movement
// documents and their lines.
package document_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/infrastructure/storage/postgres"
)

const documentsTable = "movement_documents"

var documentColumns = postgres.ExtractDBColumns[movement.Document]()

// Compile-time check.
var _ movement.Repository = (*DocumentRepo)(nil)

// DocumentRepo implements movement.Repository.
type DocumentRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewDocumentRepo creates a document header repository.
func NewDocumentRepo(txManager *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header. Lines are written separately through LineRepo.
func (r *DocumentRepo) Create(ctx context.Context, doc *movement.Document) error {
	sql, args, err := r.builder.Insert(documentsTable).
		SetMap(postgres.StructToMap(doc)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.writeError(err, doc, "insert document")
	}
	return nil
}

// Get implements movement.Repository.
func (r *DocumentRepo) Get(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error) {
	return r.get(ctx, r.selectQuery(tenantID, direction, docID), docID)
}

// GetForUpdate implements movement.Repository.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error) {
	return r.get(ctx, r.selectQuery(tenantID, direction, docID).Suffix("FOR UPDATE"), docID)
}

func (r *DocumentRepo) selectQuery(tenantID string, direction movement.Direction, docID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(squirrel.Eq{
			"id":        docID,
			"tenant_id": tenantID,
			"direction": string(direction),
		})
}

func (r *DocumentRepo) get(ctx context.Context, q squirrel.SelectBuilder, docID id.ID) (*movement.Document, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var doc movement.Document
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", docID.String())
		}
		return nil, fmt.Errorf("get document: %w", postgres.ClassifyError(err))
	}
	return &doc, nil
}

// Update writes the header with an optimistic version check. On success
// doc.Version holds the new version.
func (r *DocumentRepo) Update(ctx context.Context, doc *movement.Document) error {
	sql, args, err := r.updateQuery(doc).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.writeError(err, doc, "update document")
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		if _, err := r.Get(ctx, doc.TenantID, doc.Direction, doc.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification("document")
	}

	doc.Version++
	return nil
}

func (r *DocumentRepo) updateQuery(doc *movement.Document) squirrel.UpdateBuilder {
	return r.builder.Update(documentsTable).
		Set("counterparty_name", doc.CounterpartyName).
		Set("counterparty_contact", doc.CounterpartyContact).
		Set("counterparty_address", doc.CounterpartyAddress).
		Set("reference_no", doc.ReferenceNo).
		Set("movement_date", doc.MovementDate).
		Set("description", doc.Description).
		Set("status", string(doc.Status)).
		Set("updated_by", doc.UpdatedBy).
		Set("updated_at", doc.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"id":        doc.ID,
			"tenant_id": doc.TenantID,
			"version":   doc.Version,
		})
}

// Delete removes the header. Lines must be deleted first.
func (r *DocumentRepo) Delete(ctx context.Context, tenantID string, docID id.ID) error {
	sql, args, err := r.builder.Delete(documentsTable).
		Where(squirrel.Eq{"id": docID, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete document: %w", postgres.ClassifyError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("document", docID.String())
	}
	return nil
}

// ExistsReference implements movement.Repository.
func (r *DocumentRepo) ExistsReference(ctx context.Context, tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) (bool, error) {
	sql, args, err := r.existsReferenceQuery(tenantID, direction, referenceNo, excludeID).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("check reference: %w", postgres.ClassifyError(err))
	}
	return exists, nil
}

func (r *DocumentRepo) existsReferenceQuery(tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) squirrel.SelectBuilder {
	return r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(documentsTable).
		Where(squirrel.Eq{
			"direction":    string(direction),
			"reference_no": referenceNo,
			"tenant_id":    tenantID,
		}).
		Where(squirrel.NotEq{"id": excludeID}).
		Suffix(")")
}

// writeError restores direction and reference on a unique violation of the
// reference index; the classified error does not carry them.
func (r *DocumentRepo) writeError(err error, doc *movement.Document, op string) error {
	err = postgres.ClassifyError(err)
	if apperror.Is(err, apperror.CodeDuplicateReference) {
		return apperror.NewDuplicateReference(string(doc.Direction), doc.ReferenceNo).WithCause(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
