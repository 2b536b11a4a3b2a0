// Package handler exposes the catalog over HTTP. It is a deliberately thin
// layer: routing, JSON mapping, and error translation. All catalog semantics
// live in internal/catalog.
package handler

import (
	"net/http"

	"github.com/xenking/kv-catalog/internal/catalog"
)

// Handler routes catalog requests to the service.
type Handler struct {
	catalog *catalog.Service
}

// New constructs a Handler for the given catalog service.
func New(svc *catalog.Service) *Handler {
	return &Handler{catalog: svc}
}

// Routes returns the catalog API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /product", h.createProduct)
	mux.HandleFunc("GET /product/{id}", h.readProduct)
	mux.HandleFunc("PUT /product/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /product/{id}", h.deleteProduct)
	mux.HandleFunc("GET /category/{id}", h.readCategory)
	mux.HandleFunc("GET /image/{id}", h.readImage)
	mux.HandleFunc("GET /search/{term}", h.searchProducts)
	mux.HandleFunc("GET /list/{categoryId}", h.listProductsByCategory)
	mux.HandleFunc("GET /list", h.listCategories)
	return mux
}
