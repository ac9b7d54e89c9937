package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/foodnet/market/internal/domain/money"
)

// Sentinel errors for catalog lookups and stock accounting.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a stock reservation cannot be
	// satisfied, either because the product is disabled or because fewer
	// units remain than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product represents a catalog item offered by the coop.
type Product struct {
	ID       string
	Title    string
	Price    money.Money
	Category string
	// Stock is nil when stock is not tracked for this product.
	Stock   *int
	Enabled bool
}

// Repository defines read operations for the product catalog. Stock
// mutations happen inside basket transactions and live on the basket
// repository, not here.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
