// Package id provides UUIDv7 identifiers for products, documents and lines.
package id

import (
	"github.com/google/uuid"
)

// ID is the identifier type shared by every stored record.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7, so line ids sort in insertion order.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts a string into an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse is for tests and constants only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero ID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Less orders ids bytewise. Row locks are taken in this order.
func Less(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
