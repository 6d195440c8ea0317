package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/product"
)

type productEntry struct {
	mu sync.Mutex
	p  product.Product
}

// Products implements product.Repository. Each product has its own mutex, so
// adjustments of different products do not contend.
type Products struct {
	mu   sync.RWMutex
	byID map[id.ID]*productEntry
}

// NewProducts creates an empty product repository.
func NewProducts() *Products {
	return &Products{byID: make(map[id.ID]*productEntry)}
}

func (r *Products) entry(tenantID string, productID id.ID) (*productEntry, error) {
	r.mu.RLock()
	e, ok := r.byID[productID]
	owned := ok && e.p.TenantID == tenantID
	r.mu.RUnlock()
	if !owned {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return e, nil
}

// Get implements product.Store.
func (r *Products) Get(ctx context.Context, tenantID string, productID id.ID) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.entry(tenantID, productID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	p := e.p
	e.mu.Unlock()
	return &p, nil
}

// GetMany implements product.Store.
func (r *Products) GetMany(ctx context.Context, tenantID string, ids []id.ID) (map[id.ID]*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[id.ID]*product.Product, len(ids))
	for _, pid := range ids {
		e, err := r.entry(tenantID, pid)
		if err != nil {
			continue
		}
		e.mu.Lock()
		p := e.p
		e.mu.Unlock()
		out[pid] = &p
	}
	return out, nil
}

// AdjustStock implements product.Store.
func (r *Products) AdjustStock(ctx context.Context, tenantID string, productID id.ID, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e, err := r.entry(tenantID, productID)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.CurrentStock+delta < 0 {
		return e.p.CurrentStock, apperror.NewInsufficientStock(productID.String(), -delta, e.p.CurrentStock)
	}
	e.p.CurrentStock += delta
	e.p.UpdatedAt = time.Now().UTC()
	return e.p.CurrentStock, nil
}

// Reserve implements product.Store.
func (r *Products) Reserve(ctx context.Context, tenantID string, productID id.ID, qty int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, err := r.entry(tenantID, productID)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.CurrentStock < qty {
		return false, nil
	}
	e.p.CurrentStock -= qty
	e.p.UpdatedAt = time.Now().UTC()
	return true, nil
}

// SetStock implements product.Store.
func (r *Products) SetStock(ctx context.Context, tenantID string, productID id.ID, stock int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := r.entry(tenantID, productID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.p.CurrentStock = stock
	e.p.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()
	return nil
}

// Create implements product.Repository. The name check backs up the guard the
// way a unique index does on postgres.
func (r *Products) Create(ctx context.Context, p *product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; ok {
		return apperror.NewDuplicate("product", "id", p.ID.String())
	}
	if r.nameTakenLocked(p.TenantID, p.Name, id.Nil()) {
		return apperror.NewDuplicate("product", "name", p.Name)
	}
	r.byID[p.ID] = &productEntry{p: *p}
	return nil
}

// Update implements product.Repository. CurrentStock is kept as stored.
func (r *Products) Update(ctx context.Context, p *product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[p.ID]
	if !ok || e.p.TenantID != p.TenantID {
		return apperror.NewNotFound("product", p.ID.String())
	}
	if r.nameTakenLocked(p.TenantID, p.Name, p.ID) {
		return apperror.NewDuplicate("product", "name", p.Name)
	}

	e.mu.Lock()
	stock, created := e.p.CurrentStock, e.p.CreatedAt
	e.p = *p
	e.p.CurrentStock, e.p.CreatedAt = stock, created
	e.mu.Unlock()

	p.CurrentStock = stock
	return nil
}

// ListIDs implements product.Repository.
func (r *Products) ListIDs(ctx context.Context, tenantID string) ([]id.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []id.ID
	for pid, e := range r.byID {
		if e.p.TenantID == tenantID {
			out = append(out, pid)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out, nil
}

// ExistsName implements product.Repository.
func (r *Products) ExistsName(ctx context.Context, tenantID, name string, excludeID id.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nameTakenLocked(tenantID, name, excludeID), nil
}

func (r *Products) nameTakenLocked(tenantID, name string, excludeID id.ID) bool {
	for pid, e := range r.byID {
		if pid != excludeID && e.p.TenantID == tenantID && e.p.Name == name {
			return true
		}
	}
	return false
}
