// Package product provides the product catalog and its stock aggregate.
package product

import (
	"strings"
	"time"

	"templestock/internal/core/id"
)

// Status of a catalog entry. Products are deactivated, never deleted.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Product is a tenant-scoped catalog entry. CurrentStock is derived from
// movement lines and changes only through Store.AdjustStock / Reserve.
type Product struct {
	ID            id.ID     `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenantId"`
	Name          string    `db:"name" json:"name"`
	Category      string    `db:"category" json:"category"`
	UnitOfMeasure string    `db:"unit_of_measure" json:"unitOfMeasure"`
	MinQuantity   int64     `db:"min_quantity" json:"minQuantity"`
	CurrentStock  int64     `db:"current_stock" json:"currentStock"`
	WarehouseRack string    `db:"warehouse_rack" json:"warehouseRack,omitempty"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates an active product with zero stock. Opening stock is recorded
// through an inward document.
func New(tenantID, name string) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id.New(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(name),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether new movement lines may reference the product.
func (p *Product) IsActive() bool {
	return p.Status == StatusActive
}

// NeedsReorder reports whether stock is at or below the reorder threshold.
func (p *Product) NeedsReorder() bool {
	return p.CurrentStock <= p.MinQuantity
}
