package product

import (
	"context"

	"templestock/internal/core/id"
)

// Store owns products and their CurrentStock aggregate.
// Every method is scoped to a tenant; a product of another tenant is NotFound.
type Store interface {
	Get(ctx context.Context, tenantID string, productID id.ID) (*Product, error)

	// GetMany returns the requested products keyed by id. Missing ids are simply
	// absent from the map. Inside a transaction the rows are locked in id order.
	GetMany(ctx context.Context, tenantID string, ids []id.ID) (map[id.ID]*Product, error)

	// AdjustStock applies CurrentStock += delta atomically. A negative delta that
	// would drive stock below zero fails with INSUFFICIENT_STOCK and changes nothing.
	AdjustStock(ctx context.Context, tenantID string, productID id.ID, delta int64) (int64, error)

	// Reserve decrements by qty only if CurrentStock >= qty, as one atomic step.
	// It returns false, without error, when stock is insufficient.
	Reserve(ctx context.Context, tenantID string, productID id.ID, qty int64) (bool, error)

	// SetStock overwrites CurrentStock. Only stock repair uses it.
	SetStock(ctx context.Context, tenantID string, productID id.ID, stock int64) error
}

// Repository adds catalog persistence to Store.
type Repository interface {
	Store

	Create(ctx context.Context, p *Product) error

	// Update writes catalog fields. It never writes CurrentStock.
	Update(ctx context.Context, p *Product) error

	ListIDs(ctx context.Context, tenantID string) ([]id.ID, error)

	// ExistsName reports whether another product of the tenant has exactly this
	// name. excludeID may be Nil.
	ExistsName(ctx context.Context, tenantID, name string, excludeID id.ID) (bool, error)
}

// NameGuard enforces tenant-scoped product name uniqueness.
type NameGuard interface {
	RequireUniqueProductName(ctx context.Context, tenantID, name string, excludeID id.ID) error
}
