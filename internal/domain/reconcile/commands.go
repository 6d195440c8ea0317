package reconcile

import (
	"strings"
	"time"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
)

// Header is the direction-neutral form of a document header.
type Header struct {
	Direction           movement.Direction `json:"direction" validate:"required,oneof=inward outward"`
	CounterpartyName    string             `json:"counterpartyName" validate:"notblank,max=200"`
	CounterpartyContact string             `json:"counterpartyContact" validate:"omitempty,max=20"`
	CounterpartyAddress string             `json:"counterpartyAddress" validate:"required_if=Direction inward,max=500"`
	ReferenceNo         string             `json:"referenceNo" validate:"notblank,max=50"`
	MovementDate        time.Time          `json:"movementDate" validate:"required"`
	Description         string             `json:"description" validate:"max=1000"`
	Status              movement.Status    `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

func (h Header) normalized() Header {
	h.CounterpartyName = strings.TrimSpace(h.CounterpartyName)
	h.CounterpartyContact = strings.TrimSpace(h.CounterpartyContact)
	h.CounterpartyAddress = strings.TrimSpace(h.CounterpartyAddress)
	h.ReferenceNo = strings.TrimSpace(h.ReferenceNo)
	h.Description = strings.TrimSpace(h.Description)
	if h.Status == "" {
		h.Status = movement.StatusActive
	}
	return h
}

func (h Header) applyTo(doc *movement.Document) {
	doc.CounterpartyName = h.CounterpartyName
	doc.CounterpartyContact = h.CounterpartyContact
	doc.CounterpartyAddress = h.CounterpartyAddress
	doc.ReferenceNo = h.ReferenceNo
	doc.MovementDate = h.MovementDate
	doc.Description = h.Description
	doc.Status = h.Status
}

// InwardLine is one received product.
type InwardLine struct {
	ProductID  id.ID      `json:"productId"`
	Qty        int64      `json:"qty"`
	BatchNo    string     `json:"batchNo" validate:"max=50"`
	ExpiryDate *time.Time `json:"expiryDate"`
	Remarks    string     `json:"remarks" validate:"max=500"`
}

// OutwardLine is one issued product.
type OutwardLine struct {
	ProductID id.ID  `json:"productId"`
	Qty       int64  `json:"qty"`
	Remarks   string `json:"remarks" validate:"max=500"`
}

// CreateInward records goods received from a vendor. New documents are Active.
type CreateInward struct {
	TenantID      string       `json:"-" validate:"required"`
	ActorID       string       `json:"-"`
	VendorName    string       `json:"vendorName" validate:"notblank,max=200"`
	VendorMobile  string       `json:"vendorMobile" validate:"omitempty,max=20"`
	VendorAddress string       `json:"vendorAddress" validate:"notblank,max=500"`
	ChallanNo     string       `json:"challanNo" validate:"notblank,max=50"`
	Date          time.Time    `json:"date" validate:"required"`
	Description   string       `json:"description" validate:"max=1000"`
	Lines         []InwardLine `json:"lines" validate:"required,min=1,dive"`
}

// UpdateInward replaces the header and the full line set of an inward document.
// An empty Status means Active; Inactive withdraws the document's lines from stock.
type UpdateInward struct {
	TenantID      string          `json:"-" validate:"required"`
	ActorID       string          `json:"-"`
	DocumentID    id.ID           `json:"-"`
	VendorName    string          `json:"vendorName" validate:"notblank,max=200"`
	VendorMobile  string          `json:"vendorMobile" validate:"omitempty,max=20"`
	VendorAddress string          `json:"vendorAddress" validate:"notblank,max=500"`
	ChallanNo     string          `json:"challanNo" validate:"notblank,max=50"`
	Date          time.Time       `json:"date" validate:"required"`
	Description   string          `json:"description" validate:"max=1000"`
	Status        movement.Status `json:"status" validate:"omitempty,oneof=Active Inactive"`
	Lines         []InwardLine    `json:"lines" validate:"required,min=1,dive"`
}

// CreateOutward records goods issued to a customer. New documents are Active.
type CreateOutward struct {
	TenantID       string        `json:"-" validate:"required"`
	ActorID        string        `json:"-"`
	CustomerName   string        `json:"customerName" validate:"notblank,max=200"`
	CustomerMobile string        `json:"customerMobile" validate:"omitempty,max=20"`
	OutwardNo      string        `json:"outwardNo" validate:"notblank,max=50"`
	Date           time.Time     `json:"date" validate:"required"`
	Description    string        `json:"description" validate:"max=1000"`
	Lines          []OutwardLine `json:"lines" validate:"required,min=1,dive"`
}

// UpdateOutward replaces the header and the full line set of an outward document.
type UpdateOutward struct {
	TenantID       string          `json:"-" validate:"required"`
	ActorID        string          `json:"-"`
	DocumentID     id.ID           `json:"-"`
	CustomerName   string          `json:"customerName" validate:"notblank,max=200"`
	CustomerMobile string          `json:"customerMobile" validate:"omitempty,max=20"`
	OutwardNo      string          `json:"outwardNo" validate:"notblank,max=50"`
	Date           time.Time       `json:"date" validate:"required"`
	Description    string          `json:"description" validate:"max=1000"`
	Status         movement.Status `json:"status" validate:"omitempty,oneof=Active Inactive"`
	Lines          []OutwardLine   `json:"lines" validate:"required,min=1,dive"`
}

// DeleteInward removes an inward document and reverses its stock effect.
type DeleteInward struct {
	TenantID   string `validate:"required"`
	ActorID    string
	DocumentID id.ID
}

// DeleteOutward removes an outward document and returns its quantities to stock.
type DeleteOutward struct {
	TenantID   string `validate:"required"`
	ActorID    string
	DocumentID id.ID
}

// Result identifies the document an operation wrote.
type Result struct {
	DocumentID id.ID `json:"id"`
}

func inwardHeader(vendor, mobile, address, challan string, date time.Time, desc string, status movement.Status) Header {
	return Header{
		Direction:           movement.Inward,
		CounterpartyName:    vendor,
		CounterpartyContact: mobile,
		CounterpartyAddress: address,
		ReferenceNo:         challan,
		MovementDate:        date,
		Description:         desc,
		Status:              status,
	}
}

func outwardHeader(customer, mobile, outwardNo string, date time.Time, desc string, status movement.Status) Header {
	return Header{
		Direction:           movement.Outward,
		CounterpartyName:    customer,
		CounterpartyContact: mobile,
		ReferenceNo:         outwardNo,
		MovementDate:        date,
		Description:         desc,
		Status:              status,
	}
}

func inwardLines(in []InwardLine) []movement.Line {
	out := make([]movement.Line, len(in))
	for i, l := range in {
		out[i] = movement.Line{
			ProductID:  l.ProductID,
			Qty:        l.Qty,
			BatchNo:    strings.TrimSpace(l.BatchNo),
			ExpiryDate: l.ExpiryDate,
			Remarks:    strings.TrimSpace(l.Remarks),
		}
	}
	return out
}

func outwardLines(in []OutwardLine) []movement.Line {
	out := make([]movement.Line, len(in))
	for i, l := range in {
		out[i] = movement.Line{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			Remarks:   strings.TrimSpace(l.Remarks),
		}
	}
	return out
}
