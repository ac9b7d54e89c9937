// Package payment holds the immutable financial record of a checkout and
// the status transitions driven by the payment gateway.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/foodnet/market/internal/domain/money"
)

// Status is the gateway-facing payment state.
type Status string

const (
	StatusUnpaid     Status = "unpaid"
	StatusPaidCash   Status = "paid-cash"
	StatusPaidMobile Status = "paid-mobile"
	StatusCanceled   Status = "canceled"
)

// Valid reports whether s is a known payment status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPaidCash, StatusPaidMobile, StatusCanceled:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a payment does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("payment not found")
	// ErrInvalidTransition is returned when a status update does not start
	// from the unpaid state.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrExtraTooLong is returned when the free-text extra field exceeds
	// the stored column size.
	ErrExtraTooLong = errors.New("extra text too long")
)

// MaxExtraLen bounds the free-text extra field.
const MaxExtraLen = 512

// Payment is a point-in-time snapshot of a completed checkout. Apart from
// gateway status updates it is never mutated after creation.
type Payment struct {
	ID        string
	UserID    string
	BasketID  string
	AccountID *string
	Amount    money.Money
	Status    Status
	Extra     string
	CreatedAt time.Time
	Items     []Item
}

// Item copies product name and price at checkout time so later catalog
// edits do not alter historical payments.
type Item struct {
	ID           string
	PaymentID    string
	Name         string
	Price        money.Money
	Quantity     int
	DeliveryDate time.Time
}

// Repository defines persistence operations for payments. Creation happens
// inside the basket checkout transaction and therefore lives on the basket
// repository.
type Repository interface {
	// GetForUser returns a payment with its items, scoped to the owning user.
	GetForUser(ctx context.Context, id, userID string) (*Payment, error)

	// ListByUser returns the user's payments newest-first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error)

	// UpdateStatus moves a payment out of the unpaid state. Implementations
	// must be compare-and-set: the update applies only when the current
	// status is unpaid, otherwise ErrInvalidTransition is returned.
	UpdateStatus(ctx context.Context, id string, status Status, extra string) error
}

// PageSize is the number of payments per history page.
const PageSize = 25

// Service exposes payment history and gateway status updates.
type Service struct {
	payments Repository
}

// NewService creates a payment Service.
func NewService(payments Repository) *Service {
	return &Service{payments: payments}
}

// ListPage returns one page of the user's payment history, newest first.
// Pages are 1-based; out-of-range pages return an empty slice.
func (s *Service) ListPage(ctx context.Context, userID string, page int) ([]Payment, error) {
	if page < 1 {
		page = 1
	}
	return s.payments.ListByUser(ctx, userID, PageSize, (page-1)*PageSize)
}

// Get returns a payment with items, scoped to the owning user.
func (s *Service) Get(ctx context.Context, id, userID string) (*Payment, error) {
	return s.payments.GetForUser(ctx, id, userID)
}

// MarkStatus records a gateway outcome. Only transitions out of the unpaid
// state are allowed; the extra text is bounded by MaxExtraLen.
func (s *Service) MarkStatus(ctx context.Context, id string, status Status, extra string) error {
	if !status.Valid() || status == StatusUnpaid {
		return errors.Wrapf(ErrInvalidTransition, "to %q", status)
	}
	if len(extra) > MaxExtraLen {
		return ErrExtraTooLong
	}
	return s.payments.UpdateStatus(ctx, id, status, extra)
}
