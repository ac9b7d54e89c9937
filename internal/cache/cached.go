package cache

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/foodnet/market/internal/domain/product"
)

var _ product.Repository = (*CachedProductRepository)(nil)

// CachedProductRepository decorates a product.Repository with a catalog
// list cache. Point lookups always hit the store: they feed basket
// mutations where a stale price or stock count matters more than latency.
type CachedProductRepository struct {
	inner product.Repository
	cache CatalogCache
}

// NewCachedProductRepository wraps inner with the given cache.
func NewCachedProductRepository(inner product.Repository, cache CatalogCache) *CachedProductRepository {
	return &CachedProductRepository{inner: inner, cache: cache}
}

// List serves the catalog from cache when possible. Cache failures degrade
// to the underlying repository and are logged, never surfaced.
func (r *CachedProductRepository) List(ctx context.Context) ([]product.Product, error) {
	products, err := r.cache.GetList(ctx)
	if err == nil {
		return products, nil
	}
	if err != ErrCacheMiss {
		zctx.From(ctx).Warn("catalog cache read failed", zap.Error(err))
	}

	products, err = r.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	// An empty catalog is not cached: it usually means the store has not
	// been seeded yet, and pinning it for a full TTL hides the first import.
	if len(products) > 0 {
		if err := r.cache.SetList(ctx, products); err != nil {
			zctx.From(ctx).Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return products, nil
}

func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *CachedProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.inner.GetByIDs(ctx, ids)
}
