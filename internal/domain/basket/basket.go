// Package basket implements the member basket: one open basket per user,
// line-item mutation against the catalog, and checkout into an immutable
// payment snapshot.
package basket

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/foodnet/market/internal/domain/payment"
)

// Status is the lifecycle state of a basket.
type Status string

const (
	// StatusOpen marks the single basket per user accepting modifications.
	StatusOpen Status = "open"
	// StatusCheckedOut marks a basket that has been converted to a payment.
	// The transition happens exactly once and is irreversible.
	StatusCheckedOut Status = "checked-out"
)

// Sentinel errors for basket operations. The upstream system performed
// silent no-ops on most of these; callers here are expected to branch.
var (
	// ErrBasketClosed is returned when mutating or checking out a basket
	// that is no longer open.
	ErrBasketClosed = errors.New("basket is not open")
	// ErrEmptyBasket is returned when checking out a basket with no items.
	ErrEmptyBasket = errors.New("basket is empty")
	// ErrBasketFull is returned when an add would exceed the configured
	// maximum number of line items.
	ErrBasketFull = errors.New("basket item limit reached")
)

// Basket is a user's in-progress collection of intended purchases.
type Basket struct {
	ID        string
	UserID    string
	Status    Status
	CreatedAt time.Time
	Items     []Item
}

// Item is one product line within a basket. Quantity is always positive;
// rows are deleted rather than stored with zero quantity.
type Item struct {
	ID           string
	BasketID     string
	ProductID    string
	Quantity     int
	DeliveryDate time.Time
}

// ItemsCount returns the number of line items, not the summed quantity.
func (b *Basket) ItemsCount() int {
	return len(b.Items)
}

// FindItem returns the line for (productID, deliveryDate), or nil.
func (b *Basket) FindItem(productID string, deliveryDate time.Time) *Item {
	for i := range b.Items {
		it := &b.Items[i]
		if it.ProductID == productID && sameDay(it.DeliveryDate, deliveryDate) {
			return it
		}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AddItemParams describes an item upsert performed together with the stock
// reservation in one transaction.
type AddItemParams struct {
	BasketID  string
	ProductID string
	// Currency is the added product's currency. The store re-checks it
	// against the basket's established currency under the basket row lock,
	// since the caller's aggregate may be stale by the time the
	// transaction runs.
	Currency     string
	Quantity     int
	DeliveryDate time.Time
}

// RemoveItemParams describes an item decrement/delete performed together
// with the stock release in one transaction.
type RemoveItemParams struct {
	BasketID     string
	ProductID    string
	Quantity     int
	DeliveryDate time.Time
}

// Repository defines persistence operations for baskets. Operations that
// touch several rows (item + stock, checkout snapshot) are single
// transactions on the storage side; this package never sees partial writes.
type Repository interface {
	// OpenForUser returns the user's open basket with items, creating one
	// if none exists. Safe under concurrent calls: uniqueness of the open
	// basket is enforced by the store.
	OpenForUser(ctx context.Context, userID string) (*Basket, error)

	// Get returns a basket with its items.
	Get(ctx context.Context, basketID string) (*Basket, error)

	// AddItem reserves stock for the product and upserts the line item,
	// incrementing quantity when the (basket, product, delivery date) row
	// already exists. Returns product.ErrInsufficientStock when the product
	// is disabled or under-stocked, and money.ErrCurrencyMismatch when
	// p.Currency differs from the currency of the items already in the
	// basket at transaction time.
	AddItem(ctx context.Context, p AddItemParams) error

	// RemoveItem decrements the line item, deleting it when the remaining
	// quantity would drop to zero or below, and releases the removed
	// quantity back to stock. Returns the quantity actually removed;
	// zero when no matching line exists.
	RemoveItem(ctx context.Context, p RemoveItemParams) (int, error)

	// Checkout atomically flips the basket from open to checked-out and
	// persists the payment with its items. Returns ErrBasketClosed when the
	// basket was not open at commit time, in which case nothing is written.
	Checkout(ctx context.Context, basketID string, pay *payment.Payment) error
}
