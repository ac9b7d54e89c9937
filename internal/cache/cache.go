// Package cache provides an optional Redis-backed cache for the product
// catalog. The catalog is read on every basket mutation, while edits are
// rare, so a short TTL keeps staleness bounded without cache invalidation
// plumbing.
package cache

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/foodnet/market/internal/domain/product"
)

// ErrCacheMiss is returned when no cached catalog entry exists.
var ErrCacheMiss = errors.New("cache miss")

// CatalogCache stores the full enabled-product list.
type CatalogCache interface {
	GetList(ctx context.Context) ([]product.Product, error)
	SetList(ctx context.Context, products []product.Product) error
}
