package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/foodnet/market/internal/domain/money"
	"github.com/foodnet/market/internal/domain/product"
)

const catalogKey = "catalog:products"

// cachedProduct is the Redis wire form of a product. Price is kept as a
// string so decimal precision survives the JSON round trip.
type cachedProduct struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Category string `json:"category"`
	Stock    *int   `json:"stock"`
	Enabled  bool   `json:"enabled"`
}

// NewRedisCache returns a CatalogCache backed by the given Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 5 * time.Minute,
	}
}

// RedisCache caches the product list with a jittered TTL so concurrent
// instances do not expire in lockstep.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

var _ CatalogCache = (*RedisCache)(nil)

func (r *RedisCache) GetList(ctx context.Context) ([]product.Product, error) {
	data, err := r.client.Get(ctx, catalogKey).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cached []cachedProduct
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal catalog failed: %w", err)
	}

	products := make([]product.Product, len(cached))
	for i, c := range cached {
		price, err := decimal.NewFromString(c.Price)
		if err != nil {
			return nil, fmt.Errorf("parse cached price %q: %w", c.Price, err)
		}
		products[i] = product.Product{
			ID:       c.ID,
			Title:    c.Title,
			Price:    money.New(price, c.Currency),
			Category: c.Category,
			Stock:    c.Stock,
			Enabled:  c.Enabled,
		}
	}
	return products, nil
}

func (r *RedisCache) SetList(ctx context.Context, products []product.Product) error {
	cached := make([]cachedProduct, len(products))
	for i, p := range products {
		cached[i] = cachedProduct{
			ID:       p.ID,
			Title:    p.Title,
			Price:    p.Price.Amount.String(),
			Currency: p.Price.Currency,
			Category: p.Category,
			Stock:    p.Stock,
			Enabled:  p.Enabled,
		}
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := r.client.Set(ctx, catalogKey, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
