// Package handler exposes the market API over HTTP. Handlers parse and
// validate requests, delegate to the domain services, and map domain errors
// to status codes; no business rules live here.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foodnet/market/internal/domain/basket"
	"github.com/foodnet/market/internal/domain/payment"
	"github.com/foodnet/market/internal/domain/product"
	"github.com/foodnet/market/internal/events"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxQuantity bounds the quantity accepted per add/remove request.
	MaxQuantity int
}

// Handler implements the HTTP API, delegating business logic to the domain
// services.
type Handler struct {
	products    product.Repository
	basketSvc   *basket.Service
	paymentSvc  *payment.Service
	publisher   *events.Publisher
	maxQuantity int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	basketSvc *basket.Service,
	paymentSvc *payment.Service,
	publisher *events.Publisher,
) *Handler {
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 100
	}
	return &Handler{
		products:    products,
		basketSvc:   basketSvc,
		paymentSvc:  paymentSvc,
		publisher:   publisher,
		maxQuantity: cfg.MaxQuantity,
	}
}

// Routes returns the authenticated API router.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth)

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Get("/basket", h.GetBasket)
	r.Post("/basket/items", h.AddBasketItem)
	r.Delete("/basket/items", h.RemoveBasketItem)
	r.Post("/basket/checkout", h.Checkout)

	r.Get("/payments", h.ListPayments)
	r.Get("/payments/{id}", h.GetPayment)
	r.Post("/payments/{id}/status", h.UpdatePaymentStatus)

	return r
}
