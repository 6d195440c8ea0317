package movement

import (
	"context"

	"templestock/internal/core/id"
)

// Repository persists document headers. Lookups are scoped to tenant and
// direction: a document of another tenant or direction is NotFound.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, tenantID string, direction Direction, docID id.ID) (*Document, error)

	// GetForUpdate is Get plus a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, tenantID string, direction Direction, docID id.ID) (*Document, error)

	// Update writes header fields with an optimistic version check and bumps Version.
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, tenantID string, docID id.ID) error

	// ExistsReference reports whether referenceNo is used by another document of
	// the tenant and direction. excludeID may be Nil.
	ExistsReference(ctx context.Context, tenantID string, direction Direction, referenceNo string, excludeID id.ID) (bool, error)
}

// LineSet owns the lines of documents.
type LineSet interface {
	// ReplaceAll deletes every line of documentID and inserts lines, as one step.
	ReplaceAll(ctx context.Context, documentID id.ID, lines []Line) error

	// ListFor returns lines ordered by LineNo.
	ListFor(ctx context.Context, documentID id.ID) ([]Line, error)

	DeleteAll(ctx context.Context, documentID id.ID) error

	// SumByProduct totals line quantities of active documents of the tenant that
	// reference productID, per direction.
	SumByProduct(ctx context.Context, tenantID string, productID id.ID) (inward, outward int64, err error)
}
