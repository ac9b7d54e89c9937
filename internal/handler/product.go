package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/foodnet/market/internal/domain/product"
)

// productDTO is the JSON representation of a catalog product.
type productDTO struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Category string  `json:"category,omitempty"`
	Stock    *int    `json:"stock,omitempty"`
}

func toProductDTO(p product.Product) productDTO {
	return productDTO{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price.Amount.InexactFloat64(),
		Currency: p.Price.Currency,
		Category: p.Category,
		Stock:    p.Stock,
	}
}

// ListProducts returns the enabled product catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	dtos := make([]productDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one enabled product by ID. Disabled products stay in
// the store for basket and payment history lookups but are hidden from the
// public catalog, detail and list alike.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	if !p.Enabled {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	respondJSON(w, http.StatusOK, toProductDTO(*p))
}
