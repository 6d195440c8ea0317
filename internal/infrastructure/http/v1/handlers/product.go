package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"templestock/internal/core/id"
	"templestock/internal/domain/product"
	"templestock/internal/domain/reconcile"
	"templestock/internal/infrastructure/http/v1/dto"
)

// ProductService is the catalog API.
type ProductService interface {
	Create(ctx context.Context, tenantID string, in product.Input) (*product.Product, error)
	Update(ctx context.Context, tenantID string, productID id.ID, in product.Input) (*product.Product, error)
	Get(ctx context.Context, tenantID string, productID id.ID) (*product.Product, error)
}

// StockAuditor recomputes stock from movement lines.
type StockAuditor interface {
	VerifyStock(ctx context.Context, tenantID string, productID id.ID) (reconcile.StockReport, error)
	RepairStock(ctx context.Context, tenantID, actorID string, productID id.ID) (reconcile.StockReport, error)
}

// ProductHandler handles catalog and stock-check endpoints.
type ProductHandler struct {
	*BaseHandler
	service ProductService
	auditor StockAuditor
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service ProductService, auditor StockAuditor) *ProductHandler {
	return &ProductHandler{BaseHandler: base, service: service, auditor: auditor}
}

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.ProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, _ := h.Actor(c)

	p, err := h.service.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromProduct(p))
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, _ := h.Actor(c)

	p, err := h.service.Get(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}

// Update handles PUT /products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	productID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.ProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tenantID, _ := h.Actor(c)

	p, err := h.service.Update(c.Request.Context(), tenantID, productID, req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}

// StockCheck handles GET /products/:id/stock-check
func (h *ProductHandler) StockCheck(c *gin.Context) {
	productID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, _ := h.Actor(c)

	rep, err := h.auditor.VerifyStock(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"report": rep, "consistent": rep.Consistent()})
}

// StockRepair handles POST /products/:id/stock-repair
func (h *ProductHandler) StockRepair(c *gin.Context) {
	productID, ok := h.ParseID(c)
	if !ok {
		return
	}
	tenantID, actorID := h.Actor(c)

	rep, err := h.auditor.RepairStock(c.Request.Context(), tenantID, actorID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"report": rep, "consistent": rep.Consistent()})
}
