package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/foodnet/market/internal/domain/money"
	"github.com/foodnet/market/internal/domain/payment"
)

const (
	getPaymentForUserSQL = `SELECT id, user_id, basket_id, account_id, amount, currency, status, extra, created_at
		FROM payments WHERE id = $1 AND user_id = $2`

	listPaymentsByUserSQL = `SELECT id, user_id, basket_id, account_id, amount, currency, status, extra, created_at
		FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	getPaymentItemsSQL = `SELECT id, payment_id, name, price, currency, quantity, delivery_date
		FROM payment_items WHERE payment_id = $1 ORDER BY id`

	// Compare-and-set: only unpaid payments can transition, so a repeated
	// gateway callback cannot overwrite an earlier outcome.
	updatePaymentStatusSQL = `UPDATE payments SET status = $2, extra = NULLIF($3, '')
		WHERE id = $1 AND status = 'unpaid'`

	paymentExistsSQL = `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
// Payment creation happens inside the basket checkout transaction and lives
// on BasketRepository.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// GetForUser returns a payment with its items, scoped to the owning user.
func (r *PaymentRepository) GetForUser(ctx context.Context, id, userID string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, getPaymentForUserSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting payment %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getPaymentItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing payment items for %q: %w", id, err)
	}
	p.Items, err = pgx.CollectRows(itemRows, scanPaymentItem)
	if err != nil {
		return nil, fmt.Errorf("listing payment items for %q: %w", id, err)
	}
	return &p, nil
}

// ListByUser returns the user's payments newest-first, without items.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, listPaymentsByUserSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing payments for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

// UpdateStatus records a gateway outcome for an unpaid payment.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payment.Status, extra string) error {
	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, id, status, extra)
	if err != nil {
		return fmt.Errorf("updating payment %q status: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, paymentExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking payment %q: %w", id, err)
	}
	if !exists {
		return payment.ErrNotFound
	}
	return errors.Wrapf(payment.ErrInvalidTransition, "payment %s is not unpaid", id)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p        payment.Payment
		amount   decimal.Decimal
		currency string
		extra    *string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.BasketID, &p.AccountID,
		&amount, &currency, &p.Status, &extra, &p.CreatedAt,
	)
	p.Amount = money.New(amount, currency)
	if extra != nil {
		p.Extra = *extra
	}
	return p, err
}

func scanPaymentItem(row pgx.CollectableRow) (payment.Item, error) {
	var (
		it       payment.Item
		price    decimal.Decimal
		currency string
	)
	err := row.Scan(
		&it.ID, &it.PaymentID, &it.Name, &price, &currency,
		&it.Quantity, &it.DeliveryDate,
	)
	it.Price = money.New(price, currency)
	return it, err
}
