package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"templestock/internal/core/id"
	"templestock/internal/domain/movement"
	"templestock/internal/domain/reconcile"
	"templestock/internal/infrastructure/http/v1/dto"
)

// MovementEngine is the part of reconcile.Engine the movement endpoints use.
type MovementEngine interface {
	CreateInward(ctx context.Context, cmd reconcile.CreateInward) (reconcile.Result, error)
	UpdateInward(ctx context.Context, cmd reconcile.UpdateInward) (reconcile.Result, error)
	DeleteInward(ctx context.Context, cmd reconcile.DeleteInward) (reconcile.Result, error)
	CreateOutward(ctx context.Context, cmd reconcile.CreateOutward) (reconcile.Result, error)
	UpdateOutward(ctx context.Context, cmd reconcile.UpdateOutward) (reconcile.Result, error)
	DeleteOutward(ctx context.Context, cmd reconcile.DeleteOutward) (reconcile.Result, error)
	GetMovement(ctx context.Context, tenantID string, direction movement.Direction, docID id.ID) (*movement.Document, error)
	History(ctx context.Context, tenantID string, docID id.ID, limit int) ([]movement.JournalEntry, error)
}

// movementReader serves the read endpoints shared by both directions.
type movementReader struct {
	*BaseHandler
	engine    MovementEngine
	direction movement.Direction
}

// Get handles GET /{inwards|outwards}/:id
func (h *movementReader) Get(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, _ := h.Actor(c)

	doc, err := h.engine.GetMovement(c.Request.Context(), tenantID, h.direction, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// History handles GET /{inwards|outwards}/:id/history
func (h *movementReader) History(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, _ := h.Actor(c)
	ctx := c.Request.Context()

	// Scope the history to documents of this direction.
	if _, err := h.engine.GetMovement(ctx, tenantID, h.direction, docID); err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.engine.History(ctx, tenantID, docID, h.ParseIntQuery(c, "limit", 20))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": entries})
}

// InwardHandler handles goods-received endpoints.
type InwardHandler struct {
	movementReader
}

// NewInwardHandler creates a new inward handler.
func NewInwardHandler(base *BaseHandler, engine MovementEngine) *InwardHandler {
	return &InwardHandler{movementReader{BaseHandler: base, engine: engine, direction: movement.Inward}}
}

// Create handles POST /inwards
func (h *InwardHandler) Create(c *gin.Context) {
	var req dto.InwardRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, actorID := h.Actor(c)

	cmd, err := req.ToCreate(tenantID, actorID)
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.CreateInward(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res.DocumentID)
}

// Update handles PUT /inwards/:id
func (h *InwardHandler) Update(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.InwardRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, actorID := h.Actor(c)

	cmd, err := req.ToUpdate(tenantID, actorID, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.UpdateInward(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.IDResponse{ID: res.DocumentID.String()})
}

// Delete handles DELETE /inwards/:id
func (h *InwardHandler) Delete(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, actorID := h.Actor(c)

	_, err := h.engine.DeleteInward(c.Request.Context(), reconcile.DeleteInward{
		TenantID:   tenantID,
		ActorID:    actorID,
		DocumentID: docID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// OutwardHandler handles goods-issued endpoints.
type OutwardHandler struct {
	movementReader
}

// NewOutwardHandler creates a new outward handler.
func NewOutwardHandler(base *BaseHandler, engine MovementEngine) *OutwardHandler {
	return &OutwardHandler{movementReader{BaseHandler: base, engine: engine, direction: movement.Outward}}
}

// Create handles POST /outwards
func (h *OutwardHandler) Create(c *gin.Context) {
	var req dto.OutwardRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, actorID := h.Actor(c)

	cmd, err := req.ToCreate(tenantID, actorID)
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.CreateOutward(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res.DocumentID)
}

// Update handles PUT /outwards/:id
func (h *OutwardHandler) Update(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.OutwardRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, actorID := h.Actor(c)

	cmd, err := req.ToUpdate(tenantID, actorID, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.UpdateOutward(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.IDResponse{ID: res.DocumentID.String()})
}

// Delete handles DELETE /outwards/:id
func (h *OutwardHandler) Delete(c *gin.Context) {
	docID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, actorID := h.Actor(c)

	_, err := h.engine.DeleteOutward(c.Request.Context(), reconcile.DeleteOutward{
		TenantID:   tenantID,
		ActorID:    actorID,
		DocumentID: docID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
