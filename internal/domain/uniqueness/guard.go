// Package uniqueness enforces tenant-scoped uniqueness of document reference
// numbers and product names.
//
// Values are compared exactly (case-sensitive) after trimming surrounding
// whitespace. "CH-001" and "ch-001" are different reference numbers.
package uniqueness

import (
	"context"
	"fmt"
	"strings"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

// Field names a unique attribute.
type Field string

const (
	FieldInwardReference  Field = "inward.referenceNo"
	FieldOutwardReference Field = "outward.referenceNo"
	FieldProductName      Field = "product.name"
)

// ReferenceField returns the reference-number field of a direction.
func ReferenceField(d movement.Direction) Field {
	if d == movement.Outward {
		return FieldOutwardReference
	}
	return FieldInwardReference
}

// ReferenceLookup is satisfied by movement.Repository.
type ReferenceLookup interface {
	ExistsReference(ctx context.Context, tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) (bool, error)
}

// NameLookup is satisfied by product.Repository.
type NameLookup interface {
	ExistsName(ctx context.Context, tenantID, name string, excludeID id.ID) (bool, error)
}

// Guard answers uniqueness questions against storage.
type Guard struct {
	refs  ReferenceLookup
	names NameLookup
}

// NewGuard creates a Guard.
func NewGuard(refs ReferenceLookup, names NameLookup) *Guard {
	return &Guard{refs: refs, names: names}
}

// Normalize is the form in which unique values are stored and compared.
func Normalize(value string) string {
	return strings.TrimSpace(value)
}

// CheckUnique reports whether value is free for field within the tenant,
// ignoring the record excludeID (Nil to ignore nothing).
func (g *Guard) CheckUnique(ctx context.Context, tenantID string, field Field, value string, excludeID id.ID) (bool, error) {
	value = Normalize(value)
	if value == "" {
		return false, apperror.NewValidation("value is required").WithDetail("field", string(field))
	}

	var (
		exists bool
		err    error
	)
	switch field {
	case FieldInwardReference:
		exists, err = g.refs.ExistsReference(ctx, tenantID, movement.Inward, value, excludeID)
	case FieldOutwardReference:
		exists, err = g.refs.ExistsReference(ctx, tenantID, movement.Outward, value, excludeID)
	case FieldProductName:
		exists, err = g.names.ExistsName(ctx, tenantID, value, excludeID)
	default:
		return false, fmt.Errorf("uniqueness: unknown field %q", field)
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", field, err)
	}
	return !exists, nil
}

// RequireUniqueReference returns DUPLICATE_REFERENCE when referenceNo is taken.
func (g *Guard) RequireUniqueReference(ctx context.Context, tenantID string, direction movement.Direction, referenceNo string, excludeID id.ID) error {
	ok, err := g.CheckUnique(ctx, tenantID, ReferenceField(direction), referenceNo, excludeID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewDuplicateReference(string(direction), Normalize(referenceNo))
	}
	return nil
}

// RequireUniqueProductName returns DUPLICATE_ENTRY when name is taken.
func (g *Guard) RequireUniqueProductName(ctx context.Context, tenantID, name string, excludeID id.ID) error {
	ok, err := g.CheckUnique(ctx, tenantID, FieldProductName, name, excludeID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewDuplicate("product", "name", Normalize(name))
	}
	return nil
}
