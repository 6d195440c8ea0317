package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

// Movements implements movement.Repository and movement.LineSet over one lock,
// so line totals are always read against a consistent set of headers.
type Movements struct {
	mu    sync.RWMutex
	docs  map[id.ID]movement.Document
	lines map[id.ID][]movement.Line
}

// NewMovements creates an empty movement repository.
func NewMovements() *Movements {
	return &Movements{
		docs:  make(map[id.ID]movement.Document),
		lines: make(map[id.ID][]movement.Line),
	}
}

// Create implements movement.Repository.
func (r *Movements) Create(ctx context.Context, doc *movement.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return apperror.NewDuplicate("document", "id", doc.ID.String())
	}
	if r.referenceTakenLocked(doc.TenantID, doc.Direction, doc.ReferenceNo, id.Nil()) {
		return apperror.NewDuplicateReference(string(doc.Direction), doc.ReferenceNo)
	}
	stored := *doc
	stored.Lines = nil
	r.docs[doc.ID] = stored
	return nil
}

// Get implements movement.Repository.
func (r *Movements) Get(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok || doc.TenantID != tenantID || doc.Direction != direction {
		return nil, apperror.NewNotFound(string(direction), docID.String())
	}
	return &doc, nil
}

// GetForUpdate implements movement.Repository. There are no row locks here;
// the engine's document key lock keeps writers of one document apart.
func (r *Movements) GetForUpdate(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error) {
	return r.Get(ctx, tenantID, direction, docID)
}

// Update implements movement.Repository.
func (r *Movements) Update(ctx context.Context, doc *movement.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[doc.ID]
	if !ok || cur.TenantID != doc.TenantID {
		return apperror.NewNotFound(string(doc.Direction), doc.ID.String())
	}
	if cur.Version != doc.Version {
		return apperror.NewConcurrentModification(string(doc.Direction))
	}
	if r.referenceTakenLocked(doc.TenantID, doc.Direction, doc.ReferenceNo, doc.ID) {
		return apperror.NewDuplicateReference(string(doc.Direction), doc.ReferenceNo)
	}

	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	stored := *doc
	stored.Lines = nil
	stored.CreatedAt, stored.CreatedBy = cur.CreatedAt, cur.CreatedBy
	r.docs[doc.ID] = stored
	return nil
}

// Delete implements movement.Repository.
func (r *Movements) Delete(ctx context.Context, tenantID string, docID id.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok || doc.TenantID != tenantID {
		return apperror.NewNotFound("document", docID.String())
	}
	delete(r.docs, docID)
	return nil
}

// ExistsReference implements movement.Repository.
func (r *Movements) ExistsReference(ctx context.Context, tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.referenceTakenLocked(tenantID, direction, referenceNo, excludeID), nil
}

func (r *Movements) referenceTakenLocked(tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) bool {
	for docID, doc := range r.docs {
		if docID != excludeID && doc.TenantID == tenantID && doc.Direction == direction && doc.ReferenceNo == referenceNo {
			return true
		}
	}
	return false
}

// ReplaceAll implements movement.LineSet.
func (r *Movements) ReplaceAll(ctx context.Context, documentID id.ID, lines []movement.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]movement.Line, len(lines))
	copy(stored, lines)
	for i := range stored {
		stored[i].DocumentID = documentID
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].LineNo < stored[j].LineNo })

	r.mu.Lock()
	r.lines[documentID] = stored
	r.mu.Unlock()
	return nil
}

// ListFor implements movement.LineSet.
func (r *Movements) ListFor(ctx context.Context, documentID id.ID) ([]movement.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.lines[documentID]
	out := make([]movement.Line, len(src))
	copy(out, src)
	return out, nil
}

// DeleteAll implements movement.LineSet.
func (r *Movements) DeleteAll(ctx context.Context, documentID id.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.lines, documentID)
	r.mu.Unlock()
	return nil
}

// SumByProduct implements movement.LineSet.
func (r *Movements) SumByProduct(ctx context.Context, tenantID string, productID id.ID) (inward, outward int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for docID, lines := range r.lines {
		doc, ok := r.docs[docID]
		if !ok || doc.TenantID != tenantID || !doc.IsActive() {
			continue
		}
		for _, l := range lines {
			if l.ProductID != productID {
				continue
			}
			if doc.Direction == movement.Inward {
				inward += l.Qty
			} else {
				outward += l.Qty
			}
		}
	}
	return inward, outward, nil
}
