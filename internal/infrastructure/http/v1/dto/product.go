package dto

import (
	"templestock/internal/domain/product"
)

// ProductRequest is the body of POST/PUT /products. Stock cannot be set here.
type ProductRequest = product.Input

// ProductResponse renders a catalog entry with its reorder flag.
type ProductResponse struct {
	*product.Product
	NeedsReorder bool `json:"needsReorder"`
}

// FromProduct maps a product to its response.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{Product: p, NeedsReorder: p.NeedsReorder()}
}
