package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foodnet/market/internal/domain/basket"
	"github.com/foodnet/market/internal/domain/money"
	"github.com/foodnet/market/internal/domain/payment"
	"github.com/foodnet/market/internal/domain/product"
)

const (
	getOpenBasketSQL = `SELECT id, user_id, status, created_at
		FROM baskets WHERE user_id = $1 AND status = 'open'`

	// The conflict target is the partial unique index on (user_id) WHERE
	// status = 'open', so a concurrent insert loses silently and the
	// follow-up select observes the winner's row.
	createOpenBasketSQL = `INSERT INTO baskets (id, user_id, status)
		VALUES ($1, $2, 'open')
		ON CONFLICT (user_id) WHERE status = 'open' DO NOTHING`

	getBasketSQL = `SELECT id, user_id, status, created_at
		FROM baskets WHERE id = $1`

	getBasketItemsSQL = `SELECT id, basket_id, product_id, quantity, delivery_date
		FROM basket_items WHERE basket_id = $1 ORDER BY id`

	lockBasketSQL = `SELECT status FROM baskets WHERE id = $1 FOR UPDATE`

	// Currency of the items already in the basket, if any. Read under the
	// basket row lock so it cannot change mid-transaction.
	basketCurrencySQL = `SELECT p.currency FROM basket_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.basket_id = $1
		ORDER BY bi.id LIMIT 1`

	// Stock is decremented only for tracked products; a disabled or
	// under-stocked product matches no row.
	reserveStockSQL = `UPDATE products
		SET stock = CASE WHEN stock IS NULL THEN NULL ELSE stock - $2 END
		WHERE id = $1 AND enabled AND (stock IS NULL OR stock >= $2)`

	releaseStockSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1 AND stock IS NOT NULL`

	upsertBasketItemSQL = `INSERT INTO basket_items (id, basket_id, product_id, quantity, delivery_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (basket_id, product_id, delivery_date)
		DO UPDATE SET quantity = basket_items.quantity + EXCLUDED.quantity`

	lockBasketItemSQL = `SELECT id, quantity FROM basket_items
		WHERE basket_id = $1 AND product_id = $2 AND delivery_date = $3
		FOR UPDATE`

	decrementBasketItemSQL = `UPDATE basket_items SET quantity = quantity - $2 WHERE id = $1`

	deleteBasketItemSQL = `DELETE FROM basket_items WHERE id = $1`

	checkoutBasketSQL = `UPDATE baskets SET status = 'checked-out'
		WHERE id = $1 AND status = 'open'`

	createPaymentSQL = `INSERT INTO payments (id, user_id, basket_id, account_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	createPaymentItemSQL = `INSERT INTO payment_items (id, payment_id, name, price, currency, quantity, delivery_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var _ basket.Repository = (*BasketRepository)(nil)

// BasketRepository implements basket.Repository backed by PostgreSQL.
// Multi-row operations (item + stock, checkout snapshot) run as single
// transactions; basket rows are locked so mutation and checkout serialize.
type BasketRepository struct {
	pool *pgxpool.Pool
}

// NewBasketRepository returns a BasketRepository that uses the given pool.
func NewBasketRepository(pool *pgxpool.Pool) *BasketRepository {
	return &BasketRepository{pool: pool}
}

// OpenForUser returns the user's open basket with items, creating one if
// none exists. The partial unique index makes concurrent creation safe: the
// losing insert is a no-op and the re-select observes the winner's basket.
func (r *BasketRepository) OpenForUser(ctx context.Context, userID string) (*basket.Basket, error) {
	b, err := r.getOpenBasket(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, createOpenBasketSQL, uuid.New().String(), userID)
	if err != nil {
		return nil, fmt.Errorf("creating basket for user %q: %w", userID, err)
	}

	b, err = r.getOpenBasket(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BasketRepository) getOpenBasket(ctx context.Context, userID string) (*basket.Basket, error) {
	var b basket.Basket
	err := r.pool.QueryRow(ctx, getOpenBasketSQL, userID).Scan(
		&b.ID, &b.UserID, &b.Status, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("getting open basket for user %q: %w", userID, err)
	}

	if b.Items, err = r.loadItems(ctx, b.ID); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns a basket with its items.
func (r *BasketRepository) Get(ctx context.Context, basketID string) (*basket.Basket, error) {
	var b basket.Basket
	err := r.pool.QueryRow(ctx, getBasketSQL, basketID).Scan(
		&b.ID, &b.UserID, &b.Status, &b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getting basket %q: %w", basketID, err)
	}

	if b.Items, err = r.loadItems(ctx, b.ID); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BasketRepository) loadItems(ctx context.Context, basketID string) ([]basket.Item, error) {
	rows, err := r.pool.Query(ctx, getBasketItemsSQL, basketID)
	if err != nil {
		return nil, fmt.Errorf("listing basket items for %q: %w", basketID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (basket.Item, error) {
		var it basket.Item
		err := row.Scan(&it.ID, &it.BasketID, &it.ProductID, &it.Quantity, &it.DeliveryDate)
		return it, err
	})
}

// AddItem reserves stock and upserts the line item in one transaction. The
// basket's single-currency rule is enforced here, under the row lock:
// the service's pre-check reads a possibly stale aggregate, so two
// concurrent first adds in different currencies would both pass it.
func (r *BasketRepository) AddItem(ctx context.Context, p basket.AddItemParams) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockOpenBasket(ctx, tx, p.BasketID); err != nil {
			return err
		}

		var cur string
		err := tx.QueryRow(ctx, basketCurrencySQL, p.BasketID).Scan(&cur)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reading basket currency for %q: %w", p.BasketID, err)
		}
		if cur != "" && p.Currency != cur {
			return errors.Wrapf(money.ErrCurrencyMismatch,
				"basket is in %s, product %s is in %s", cur, p.ProductID, p.Currency)
		}

		tag, err := tx.Exec(ctx, reserveStockSQL, p.ProductID, p.Quantity)
		if err != nil {
			return fmt.Errorf("reserving stock for product %q: %w", p.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(product.ErrInsufficientStock, "product %s", p.ProductID)
		}

		_, err = tx.Exec(ctx, upsertBasketItemSQL,
			uuid.New().String(), p.BasketID, p.ProductID, p.Quantity, p.DeliveryDate,
		)
		if err != nil {
			return fmt.Errorf("upserting basket item: %w", err)
		}
		return nil
	})
}

// RemoveItem decrements or deletes the line item and releases the removed
// quantity back to stock, all in one transaction. Returns the quantity
// actually removed; zero (and no error) when no matching line exists.
func (r *BasketRepository) RemoveItem(ctx context.Context, p basket.RemoveItemParams) (int, error) {
	var removed int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockOpenBasket(ctx, tx, p.BasketID); err != nil {
			return err
		}

		var (
			itemID   string
			quantity int
		)
		err := tx.QueryRow(ctx, lockBasketItemSQL, p.BasketID, p.ProductID, p.DeliveryDate).
			Scan(&itemID, &quantity)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("locking basket item: %w", err)
		}

		if quantity-p.Quantity <= 0 {
			if _, err := tx.Exec(ctx, deleteBasketItemSQL, itemID); err != nil {
				return fmt.Errorf("deleting basket item: %w", err)
			}
			removed = quantity
		} else {
			if _, err := tx.Exec(ctx, decrementBasketItemSQL, itemID, p.Quantity); err != nil {
				return fmt.Errorf("decrementing basket item: %w", err)
			}
			removed = p.Quantity
		}

		if _, err := tx.Exec(ctx, releaseStockSQL, p.ProductID, removed); err != nil {
			return fmt.Errorf("releasing stock for product %q: %w", p.ProductID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Checkout atomically flips the basket to checked-out and persists the
// payment snapshot. The status flip is a compare-and-set: when another
// transaction already checked the basket out, no row matches, nothing is
// written, and basket.ErrBasketClosed is returned.
func (r *BasketRepository) Checkout(ctx context.Context, basketID string, pay *payment.Payment) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, checkoutBasketSQL, basketID)
		if err != nil {
			return fmt.Errorf("checking out basket %q: %w", basketID, err)
		}
		if tag.RowsAffected() == 0 {
			return basket.ErrBasketClosed
		}

		_, err = tx.Exec(ctx, createPaymentSQL,
			pay.ID, pay.UserID, pay.BasketID, pay.AccountID,
			pay.Amount.Amount, pay.Amount.Currency, pay.Status,
		)
		if err != nil {
			return fmt.Errorf("creating payment %q: %w", pay.ID, err)
		}

		batch := &pgx.Batch{}
		for _, it := range pay.Items {
			batch.Queue(createPaymentItemSQL,
				it.ID, pay.ID, it.Name, it.Price.Amount, it.Price.Currency,
				it.Quantity, it.DeliveryDate,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("creating payment items for %q: %w", pay.ID, err)
		}
		return nil
	})
}

// lockOpenBasket takes the basket's row lock and verifies the basket is
// still open, so item mutation serializes against a concurrent checkout.
func lockOpenBasket(ctx context.Context, tx pgx.Tx, basketID string) error {
	var status basket.Status
	if err := tx.QueryRow(ctx, lockBasketSQL, basketID).Scan(&status); err != nil {
		return fmt.Errorf("locking basket %q: %w", basketID, err)
	}
	if status != basket.StatusOpen {
		return basket.ErrBasketClosed
	}
	return nil
}
