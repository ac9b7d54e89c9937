package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/foodnet/market/internal/domain/payment"
	"github.com/foodnet/market/internal/events"
)

type paymentItemDTO struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Quantity     int     `json:"quantity"`
	DeliveryDate string  `json:"deliveryDate"`
}

type paymentDTO struct {
	ID        string           `json:"id"`
	BasketID  string           `json:"basketId"`
	Amount    float64          `json:"amount"`
	Currency  string           `json:"currency"`
	Status    string           `json:"status"`
	Extra     string           `json:"extra,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	Items     []paymentItemDTO `json:"items,omitempty"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Extra  string `json:"extra,omitempty"`
}

func toPaymentDTO(p payment.Payment) paymentDTO {
	dto := paymentDTO{
		ID:        p.ID,
		BasketID:  p.BasketID,
		Amount:    p.Amount.Amount.InexactFloat64(),
		Currency:  p.Amount.Currency,
		Status:    string(p.Status),
		Extra:     p.Extra,
		CreatedAt: p.CreatedAt,
	}
	for _, it := range p.Items {
		dto.Items = append(dto.Items, paymentItemDTO{
			Name:         it.Name,
			Price:        it.Price.Amount.InexactFloat64(),
			Currency:     it.Price.Currency,
			Quantity:     it.Quantity,
			DeliveryDate: it.DeliveryDate.Format(dateLayout),
		})
	}
	return dto
}

// ListPayments returns one page of the caller's payment history,
// newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	payments, err := h.paymentSvc.ListPage(r.Context(), UserIDFromContext(r.Context()), page)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	dtos := make([]paymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetPayment returns one payment with its item snapshot, scoped to the
// caller.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentSvc.Get(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			respondError(w, http.StatusNotFound, "payment not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// UpdatePaymentStatus records a gateway outcome for an unpaid payment.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.paymentSvc.MarkStatus(r.Context(), id, payment.Status(req.Status), req.Extra)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			respondError(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, payment.ErrExtraTooLong):
			respondError(w, http.StatusBadRequest, "extra text too long")
		case errors.Is(err, payment.ErrInvalidTransition):
			respondError(w, http.StatusConflict, "payment status cannot change to "+req.Status)
		default:
			respondInternal(w, r, err)
		}
		return
	}

	typ := events.TypePaymentSettled
	if payment.Status(req.Status) == payment.StatusCanceled {
		typ = events.TypePaymentCanceled
	}
	if err := h.publisher.Publish(r.Context(), typ, UserIDFromContext(r.Context()), id, map[string]any{
		"status": req.Status,
	}); err != nil {
		zctx.From(r.Context()).Warn("publish payment status event failed", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}
