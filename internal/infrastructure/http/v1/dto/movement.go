package dto

import (
	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/domain/reconcile"
)

// --- Request DTOs ---

// InwardRequest is the body of POST/PUT /inwards.
type InwardRequest struct {
	VendorName    string              `json:"vendorName"`
	VendorMobile  string              `json:"vendorMobile,omitempty"`
	VendorAddress string              `json:"vendorAddress"`
	ChallanNo     string              `json:"challanNo"`
	Date          Date                `json:"date"`
	Description   string              `json:"description,omitempty"`
	Status        string              `json:"status,omitempty"` // update only
	Lines         []InwardLineRequest `json:"lines"`
}

// InwardLineRequest is one received product.
type InwardLineRequest struct {
	ProductID  string `json:"productId"`
	Qty        int64  `json:"qty"`
	BatchNo    string `json:"batchNo,omitempty"`
	ExpiryDate *Date  `json:"expiryDate,omitempty"`
	Remarks    string `json:"remarks,omitempty"`
}

func (r *InwardRequest) lines() ([]reconcile.InwardLine, error) {
	out := make([]reconcile.InwardLine, len(r.Lines))
	for i, l := range r.Lines {
		pid, err := parseProductID(l.ProductID, i+1)
		if err != nil {
			return nil, err
		}
		out[i] = reconcile.InwardLine{
			ProductID:  pid,
			Qty:        l.Qty,
			BatchNo:    l.BatchNo,
			ExpiryDate: datePtr(l.ExpiryDate),
			Remarks:    l.Remarks,
		}
	}
	return out, nil
}

// ToCreate converts the request into a create command.
func (r *InwardRequest) ToCreate(tenantID, actorID string) (reconcile.CreateInward, error) {
	lines, err := r.lines()
	if err != nil {
		return reconcile.CreateInward{}, err
	}
	return reconcile.CreateInward{
		TenantID:      tenantID,
		ActorID:       actorID,
		VendorName:    r.VendorName,
		VendorMobile:  r.VendorMobile,
		VendorAddress: r.VendorAddress,
		ChallanNo:     r.ChallanNo,
		Date:          r.Date.Time,
		Description:   r.Description,
		Lines:         lines,
	}, nil
}

// ToUpdate converts the request into an update command.
func (r *InwardRequest) ToUpdate(tenantID, actorID string, docID id.ID) (reconcile.UpdateInward, error) {
	cmd, err := r.ToCreate(tenantID, actorID)
	if err != nil {
		return reconcile.UpdateInward{}, err
	}
	return reconcile.UpdateInward{
		TenantID:      cmd.TenantID,
		ActorID:       cmd.ActorID,
		DocumentID:    docID,
		VendorName:    cmd.VendorName,
		VendorMobile:  cmd.VendorMobile,
		VendorAddress: cmd.VendorAddress,
		ChallanNo:     cmd.ChallanNo,
		Date:          cmd.Date,
		Description:   cmd.Description,
		Status:        movement.Status(r.Status),
		Lines:         cmd.Lines,
	}, nil
}

// OutwardRequest is the body of POST/PUT /outwards.
type OutwardRequest struct {
	CustomerName   string               `json:"customerName"`
	CustomerMobile string               `json:"customerMobile,omitempty"`
	OutwardNo      string               `json:"outwardNo"`
	Date           Date                 `json:"date"`
	Description    string               `json:"description,omitempty"`
	Status         string               `json:"status,omitempty"` // update only
	Lines          []OutwardLineRequest `json:"lines"`
}

// OutwardLineRequest is one issued product.
type OutwardLineRequest struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
	Remarks   string `json:"remarks,omitempty"`
}

func (r *OutwardRequest) lines() ([]reconcile.OutwardLine, error) {
	out := make([]reconcile.OutwardLine, len(r.Lines))
	for i, l := range r.Lines {
		pid, err := parseProductID(l.ProductID, i+1)
		if err != nil {
			return nil, err
		}
		out[i] = reconcile.OutwardLine{ProductID: pid, Qty: l.Qty, Remarks: l.Remarks}
	}
	return out, nil
}

// ToCreate converts the request into a create command.
func (r *OutwardRequest) ToCreate(tenantID, actorID string) (reconcile.CreateOutward, error) {
	lines, err := r.lines()
	if err != nil {
		return reconcile.CreateOutward{}, err
	}
	return reconcile.CreateOutward{
		TenantID:       tenantID,
		ActorID:        actorID,
		CustomerName:   r.CustomerName,
		CustomerMobile: r.CustomerMobile,
		OutwardNo:      r.OutwardNo,
		Date:           r.Date.Time,
		Description:    r.Description,
		Lines:          lines,
	}, nil
}

// ToUpdate converts the request into an update command.
func (r *OutwardRequest) ToUpdate(tenantID, actorID string, docID id.ID) (reconcile.UpdateOutward, error) {
	cmd, err := r.ToCreate(tenantID, actorID)
	if err != nil {
		return reconcile.UpdateOutward{}, err
	}
	return reconcile.UpdateOutward{
		TenantID:       cmd.TenantID,
		ActorID:        cmd.ActorID,
		DocumentID:     docID,
		CustomerName:   cmd.CustomerName,
		CustomerMobile: cmd.CustomerMobile,
		OutwardNo:      cmd.OutwardNo,
		Date:           cmd.Date,
		Description:    cmd.Description,
		Status:         movement.Status(r.Status),
		Lines:          cmd.Lines,
	}, nil
}

// --- Response DTOs ---

// MovementResponse renders a document in the vocabulary of its direction.
type MovementResponse struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`

	VendorName    string `json:"vendorName,omitempty"`
	VendorMobile  string `json:"vendorMobile,omitempty"`
	VendorAddress string `json:"vendorAddress,omitempty"`
	ChallanNo     string `json:"challanNo,omitempty"`

	CustomerName   string `json:"customerName,omitempty"`
	CustomerMobile string `json:"customerMobile,omitempty"`
	OutwardNo      string `json:"outwardNo,omitempty"`

	Date        Date           `json:"date"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Version     int            `json:"version"`
	TotalQty    int64          `json:"totalQty"`
	Lines       []LineResponse `json:"lines"`
}

// LineResponse is one document line.
type LineResponse struct {
	LineNo     int    `json:"lineNo"`
	ProductID  string `json:"productId"`
	Qty        int64  `json:"qty"`
	BatchNo    string `json:"batchNo,omitempty"`
	ExpiryDate *Date  `json:"expiryDate,omitempty"`
	Remarks    string `json:"remarks,omitempty"`
}

// FromDocument maps a stored document to its response.
func FromDocument(doc *movement.Document) MovementResponse {
	resp := MovementResponse{
		ID:          doc.ID.String(),
		Direction:   string(doc.Direction),
		Date:        Date{doc.MovementDate},
		Description: doc.Description,
		Status:      string(doc.Status),
		Version:     doc.Version,
		TotalQty:    movement.TotalQty(doc.Lines),
		Lines:       make([]LineResponse, len(doc.Lines)),
	}

	if doc.Direction == movement.Inward {
		resp.VendorName = doc.CounterpartyName
		resp.VendorMobile = doc.CounterpartyContact
		resp.VendorAddress = doc.CounterpartyAddress
		resp.ChallanNo = doc.ReferenceNo
	} else {
		resp.CustomerName = doc.CounterpartyName
		resp.CustomerMobile = doc.CounterpartyContact
		resp.OutwardNo = doc.ReferenceNo
	}

	for i, l := range doc.Lines {
		line := LineResponse{
			LineNo:    l.LineNo,
			ProductID: l.ProductID.String(),
			Qty:       l.Qty,
			BatchNo:   l.BatchNo,
			Remarks:   l.Remarks,
		}
		if l.ExpiryDate != nil {
			line.ExpiryDate = &Date{*l.ExpiryDate}
		}
		resp.Lines[i] = line
	}
	return resp
}
