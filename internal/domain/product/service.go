package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"templestock/internal/core/id"
	"templestock/internal/core/tx"
	"templestock/internal/core/validate"
	"templestock/pkg/logger"
)

// Input carries the catalog fields a caller may set. CurrentStock is absent on
// purpose: catalog edits never touch stock.
type Input struct {
	Name          string `json:"name" validate:"notblank,max=200"`
	Category      string `json:"category" validate:"notblank,max=100"`
	UnitOfMeasure string `json:"unitOfMeasure" validate:"notblank,max=20"`
	MinQuantity   int64  `json:"minQuantity" validate:"gte=0"`
	WarehouseRack string `json:"warehouseRack" validate:"max=100"`
	Status        Status `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

// Service provides catalog operations.
type Service struct {
	repo      Repository
	guard     NameGuard
	txManager tx.Manager
}

// NewService creates a catalog service.
func NewService(repo Repository, guard NameGuard, txManager tx.Manager) *Service {
	return &Service{repo: repo, guard: guard, txManager: txManager}
}

// Create adds a product with zero stock.
func (s *Service) Create(ctx context.Context, tenantID string, in Input) (*Product, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	p := New(tenantID, in.Name)
	apply(p, in)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.guard.RequireUniqueProductName(ctx, tenantID, p.Name, id.Nil()); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "product created", "product_id", p.ID, "tenant_id", tenantID, "name", p.Name)
	return p, nil
}

// Update changes catalog fields; the stored CurrentStock is left as is.
func (s *Service) Update(ctx context.Context, tenantID string, productID id.ID, in Input) (*Product, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var p *Product
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.Get(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(in.Name)
		if name != p.Name {
			if err := s.guard.RequireUniqueProductName(ctx, tenantID, name, p.ID); err != nil {
				return err
			}
		}
		p.Name = name
		apply(p, in)
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a product of the tenant.
func (s *Service) Get(ctx context.Context, tenantID string, productID id.ID) (*Product, error) {
	return s.repo.Get(ctx, tenantID, productID)
}

func apply(p *Product, in Input) {
	p.Category = strings.TrimSpace(in.Category)
	p.UnitOfMeasure = strings.TrimSpace(in.UnitOfMeasure)
	p.MinQuantity = in.MinQuantity
	p.WarehouseRack = strings.TrimSpace(in.WarehouseRack)
	if in.Status != "" {
		p.Status = in.Status
	}
}
