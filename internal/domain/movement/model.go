// Package movement provides inward and outward stock documents and their lines.
package movement

import (
	"time"

	"templestock/internal/core/id"
)

// Direction tells whether a document adds stock (inward) or issues it (outward).
type Direction string

const (
	Inward  Direction = "inward"
	Outward Direction = "outward"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Inward || d == Outward
}

// Sign is the stock effect of one unit on a line of this direction.
func (d Direction) Sign() int64 {
	if d == Outward {
		return -1
	}
	return 1
}

// Status of a document. Inactive documents contribute nothing to stock.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Document is the header of an inward or outward movement.
type Document struct {
	ID        id.ID     `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	Direction Direction `db:"direction" json:"direction"`

	// Vendor for inward documents, customer for outward documents.
	CounterpartyName    string `db:"counterparty_name" json:"counterpartyName"`
	CounterpartyContact string `db:"counterparty_contact" json:"counterpartyContact,omitempty"`
	CounterpartyAddress string `db:"counterparty_address" json:"counterpartyAddress,omitempty"`

	// Challan number (inward) or outward number; unique per tenant and direction.
	ReferenceNo  string    `db:"reference_no" json:"referenceNo"`
	MovementDate time.Time `db:"movement_date" json:"movementDate"`
	Description  string    `db:"description" json:"description,omitempty"`
	Status       Status    `db:"status" json:"status"`

	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Lines []Line `db:"-" json:"lines"`
}

// NewDocument creates an active document header with a fresh id.
func NewDocument(tenantID string, direction Direction, createdBy string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        id.New(),
		TenantID:  tenantID,
		Direction: direction,
		Status:    StatusActive,
		CreatedBy: createdBy,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the document's lines count toward stock.
func (d *Document) IsActive() bool {
	return d.Status == StatusActive
}

// Line is one product quantity on a document. BatchNo and ExpiryDate are
// descriptive only; stock is not tracked per batch.
type Line struct {
	ID         id.ID      `db:"id" json:"id"`
	DocumentID id.ID      `db:"document_id" json:"documentId"`
	LineNo     int        `db:"line_no" json:"lineNo"`
	ProductID  id.ID      `db:"product_id" json:"productId"`
	Qty        int64      `db:"qty" json:"qty"`
	BatchNo    string     `db:"batch_no" json:"batchNo,omitempty"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	Remarks    string     `db:"remarks" json:"remarks,omitempty"`
}

// Renumber assigns document id, fresh line ids and 1-based line numbers in
// slice order.
func Renumber(documentID id.ID, lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.ID = id.New()
		l.DocumentID = documentID
		l.LineNo = i + 1
		out[i] = l
	}
	return out
}

// TotalQty sums line quantities.
func TotalQty(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Qty
	}
	return total
}
