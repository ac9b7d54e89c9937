package basket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/foodnet/market/internal/domain/money"
	"github.com/foodnet/market/internal/domain/payment"
	"github.com/foodnet/market/internal/domain/product"
)

// Config holds non-dependency settings for the basket service.
type Config struct {
	// DefaultCurrency is the currency reported for empty baskets.
	DefaultCurrency string
	// MaxItems caps the number of line items per basket.
	MaxItems int
}

// Service encapsulates basket mutation and checkout business logic. It
// operates on explicit basket aggregates and delegates all multi-row
// atomicity to the Repository.
type Service struct {
	baskets  Repository
	products product.Repository
	cfg      Config
}

// NewService creates a basket Service with the required domain dependencies.
func NewService(baskets Repository, products product.Repository, cfg Config) *Service {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 20
	}
	return &Service{
		baskets:  baskets,
		products: products,
		cfg:      cfg,
	}
}

// OpenForUser returns the user's open basket, creating it lazily.
func (s *Service) OpenForUser(ctx context.Context, userID string) (*Basket, error) {
	return s.baskets.OpenForUser(ctx, userID)
}

// AddItem validates the add against the catalog and the basket's established
// currency, then upserts the line item and reserves stock in one transaction.
// It returns the refreshed basket aggregate.
func (s *Service) AddItem(ctx context.Context, b *Basket, productID string, quantity int, deliveryDate time.Time) (*Basket, error) {
	if b.Status != StatusOpen {
		return nil, ErrBasketClosed
	}
	if quantity <= 0 {
		return nil, errors.Errorf("quantity must be positive, got %d", quantity)
	}
	if b.FindItem(productID, deliveryDate) == nil && b.ItemsCount() >= s.cfg.MaxItems {
		return nil, ErrBasketFull
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	// A basket holds a single currency, established by its first item.
	// This check runs against the caller's aggregate and can race with a
	// concurrent first add; the repository re-checks under the basket row
	// lock, which is the authoritative verdict.
	cur, err := s.Currency(ctx, b)
	if err != nil {
		return nil, err
	}
	if cur != "" && p.Price.Currency != cur {
		return nil, errors.Wrapf(money.ErrCurrencyMismatch,
			"basket is in %s, product %s is in %s", cur, p.ID, p.Price.Currency)
	}

	err = s.baskets.AddItem(ctx, AddItemParams{
		BasketID:     b.ID,
		ProductID:    productID,
		Currency:     p.Price.Currency,
		Quantity:     quantity,
		DeliveryDate: deliveryDate,
	})
	if err != nil {
		return nil, err
	}

	return s.baskets.Get(ctx, b.ID)
}

// RemoveItem decrements the matching line item, deleting it when the
// remaining quantity would drop to zero or below, and releases the removed
// quantity back to stock. Removing a line that does not exist is a no-op.
func (s *Service) RemoveItem(ctx context.Context, b *Basket, productID string, quantity int, deliveryDate time.Time) (*Basket, error) {
	if b.Status != StatusOpen {
		return nil, ErrBasketClosed
	}
	if quantity <= 0 {
		return nil, errors.Errorf("quantity must be positive, got %d", quantity)
	}

	if _, err := s.baskets.RemoveItem(ctx, RemoveItemParams{
		BasketID:     b.ID,
		ProductID:    productID,
		Quantity:     quantity,
		DeliveryDate: deliveryDate,
	}); err != nil {
		return nil, err
	}

	return s.baskets.Get(ctx, b.ID)
}

// Currency returns the basket's established currency: the currency of its
// first item's product, or "" for an empty basket.
func (s *Service) Currency(ctx context.Context, b *Basket) (string, error) {
	if len(b.Items) == 0 {
		return "", nil
	}
	p, err := s.products.GetByID(ctx, b.Items[0].ProductID)
	if err != nil {
		return "", errors.Wrap(err, "get first item product")
	}
	return p.Price.Currency, nil
}

// Total computes Σ(price × quantity) across the basket's items at current
// catalog prices. An empty basket totals zero in the default currency.
func (s *Service) Total(ctx context.Context, b *Basket) (money.Money, error) {
	total, _, err := s.totalWithProducts(ctx, b)
	return total, err
}

// totalWithProducts computes the total and returns the fetched products
// keyed by ID so checkout can reuse them for the snapshot.
func (s *Service) totalWithProducts(ctx context.Context, b *Basket) (money.Money, map[string]product.Product, error) {
	if len(b.Items) == 0 {
		return money.Zero(s.cfg.DefaultCurrency), nil, nil
	}

	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return money.Money{}, nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	var total money.Money
	for i, it := range b.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return money.Money{}, nil, errors.Wrapf(product.ErrNotFound, "basket item %s", it.ProductID)
		}
		line := p.Price.MulInt(it.Quantity)
		if i == 0 {
			total = line
			continue
		}
		// Mixed currencies should be unreachable past the AddItem guard,
		// but the invariant is re-checked rather than assumed.
		total, err = total.Add(line)
		if err != nil {
			return money.Money{}, nil, err
		}
	}

	return total.Round(), byID, nil
}

// Checkout converts an open, non-empty basket into a payment snapshot.
// The status flip, the payment row, and all payment items commit in a single
// transaction; concurrent checkouts of the same basket produce exactly one
// payment, with the loser receiving ErrBasketClosed.
func (s *Service) Checkout(ctx context.Context, b *Basket) (*payment.Payment, error) {
	if b.Status != StatusOpen {
		return nil, ErrBasketClosed
	}
	if len(b.Items) == 0 {
		return nil, ErrEmptyBasket
	}

	total, byID, err := s.totalWithProducts(ctx, b)
	if err != nil {
		return nil, err
	}

	pay := &payment.Payment{
		ID:       uuid.New().String(),
		UserID:   b.UserID,
		BasketID: b.ID,
		Amount:   total,
		Status:   payment.StatusUnpaid,
	}

	pay.Items = make([]payment.Item, len(b.Items))
	for i, it := range b.Items {
		p := byID[it.ProductID]
		pay.Items[i] = payment.Item{
			ID:           uuid.New().String(),
			PaymentID:    pay.ID,
			Name:         p.Title,
			Price:        p.Price,
			Quantity:     it.Quantity,
			DeliveryDate: it.DeliveryDate,
		}
	}

	if err := s.baskets.Checkout(ctx, b.ID, pay); err != nil {
		return nil, err
	}

	b.Status = StatusCheckedOut
	return pay, nil
}
