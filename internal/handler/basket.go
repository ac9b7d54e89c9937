package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/foodnet/market/internal/domain/basket"
	"github.com/foodnet/market/internal/domain/money"
	"github.com/foodnet/market/internal/domain/product"
	"github.com/foodnet/market/internal/events"
)

// itemRequest is the body for adding or removing a basket line.
type itemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	// DeliveryDate is an ISO date (2026-09-04); defaults to today.
	DeliveryDate string `json:"deliveryDate,omitempty"`
}

type basketItemDTO struct {
	ProductID    string  `json:"productId"`
	Title        string  `json:"title"`
	Quantity     int     `json:"quantity"`
	DeliveryDate string  `json:"deliveryDate"`
	Price        float64 `json:"price"`
	Subtotal     float64 `json:"subtotal"`
}

type basketDTO struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Items      []basketItemDTO `json:"items"`
	ItemsCount int             `json:"itemsCount"`
	Total      float64         `json:"total"`
	Currency   string          `json:"currency"`
}

type checkoutResponse struct {
	PaymentID string  `json:"paymentId"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
}

const dateLayout = "2006-01-02"

// parseItemRequest decodes and validates an add/remove body.
func (h *Handler) parseItemRequest(r *http.Request) (itemRequest, time.Time, error) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, time.Time{}, errors.New("invalid JSON body")
	}
	if req.ProductID == "" {
		return req, time.Time{}, errors.New("productId is required")
	}
	if req.Quantity < 1 || req.Quantity > h.maxQuantity {
		return req, time.Time{}, errors.Errorf("quantity must be between 1 and %d", h.maxQuantity)
	}

	deliveryDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.DeliveryDate != "" {
		var err error
		deliveryDate, err = time.Parse(dateLayout, req.DeliveryDate)
		if err != nil {
			return req, time.Time{}, errors.New("deliveryDate must be formatted as 2006-01-02")
		}
	}
	return req, deliveryDate, nil
}

// basketView assembles the basket response, joining catalog titles and
// prices and computing per-line subtotals plus the basket total.
func (h *Handler) basketView(ctx context.Context, b *basket.Basket) (basketDTO, error) {
	dto := basketDTO{
		ID:         b.ID,
		Status:     string(b.Status),
		Items:      make([]basketItemDTO, 0, len(b.Items)),
		ItemsCount: b.ItemsCount(),
	}

	total, err := h.basketSvc.Total(ctx, b)
	if err != nil {
		return basketDTO{}, err
	}
	dto.Total = total.Amount.InexactFloat64()
	dto.Currency = total.Currency

	if len(b.Items) == 0 {
		return dto, nil
	}

	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ProductID
	}
	fetched, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return basketDTO{}, err
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, it := range b.Items {
		p := byID[it.ProductID]
		dto.Items = append(dto.Items, basketItemDTO{
			ProductID:    it.ProductID,
			Title:        p.Title,
			Quantity:     it.Quantity,
			DeliveryDate: it.DeliveryDate.Format(dateLayout),
			Price:        p.Price.Amount.InexactFloat64(),
			Subtotal:     p.Price.MulInt(it.Quantity).Amount.InexactFloat64(),
		})
	}
	return dto, nil
}

// GetBasket returns the caller's open basket, creating it lazily.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	b, err := h.basketSvc.OpenForUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	h.respondBasket(w, r, b)
}

// AddBasketItem validates the request and adds the line to the caller's
// open basket, reserving stock.
func (h *Handler) AddBasketItem(w http.ResponseWriter, r *http.Request) {
	req, deliveryDate, err := h.parseItemRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	b, err := h.basketSvc.OpenForUser(ctx, UserIDFromContext(ctx))
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	b, err = h.basketSvc.AddItem(ctx, b, req.ProductID, req.Quantity, deliveryDate)
	if err != nil {
		h.respondBasketError(w, r, err)
		return
	}
	h.respondBasket(w, r, b)
}

// RemoveBasketItem removes up to the requested quantity from the matching
// line and releases the stock. Missing lines are a no-op.
func (h *Handler) RemoveBasketItem(w http.ResponseWriter, r *http.Request) {
	req, deliveryDate, err := h.parseItemRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	b, err := h.basketSvc.OpenForUser(ctx, UserIDFromContext(ctx))
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	b, err = h.basketSvc.RemoveItem(ctx, b, req.ProductID, req.Quantity, deliveryDate)
	if err != nil {
		h.respondBasketError(w, r, err)
		return
	}
	h.respondBasket(w, r, b)
}

// Checkout converts the caller's open basket into a payment and announces
// it to downstream consumers.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.basketSvc.OpenForUser(ctx, UserIDFromContext(ctx))
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	pay, err := h.basketSvc.Checkout(ctx, b)
	if err != nil {
		h.respondBasketError(w, r, err)
		return
	}

	// Best-effort: the payment is committed, a broker outage must not fail
	// the request.
	if err := h.publisher.Publish(ctx, events.TypePaymentCreated, pay.UserID, pay.ID, map[string]any{
		"amount":   pay.Amount.Amount.String(),
		"currency": pay.Amount.Currency,
	}); err != nil {
		zctx.From(ctx).Warn("publish payment.created failed", zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID: pay.ID,
		Total:     pay.Amount.Amount.InexactFloat64(),
		Currency:  pay.Amount.Currency,
		Status:    string(pay.Status),
	})
}

func (h *Handler) respondBasket(w http.ResponseWriter, r *http.Request, b *basket.Basket) {
	dto, err := h.basketView(r.Context(), b)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto)
}

// respondBasketError maps basket domain errors to HTTP status codes.
func (h *Handler) respondBasketError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		respondError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, product.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "product is not available in the requested quantity")
	case errors.Is(err, money.ErrCurrencyMismatch):
		respondError(w, http.StatusConflict, "product currency does not match the basket")
	case errors.Is(err, basket.ErrBasketFull):
		respondError(w, http.StatusConflict, "basket cannot hold more items")
	case errors.Is(err, basket.ErrBasketClosed):
		respondError(w, http.StatusConflict, "basket is already checked out")
	case errors.Is(err, basket.ErrEmptyBasket):
		respondError(w, http.StatusConflict, "basket is empty")
	default:
		respondInternal(w, r, err)
	}
}
