package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnknownKey is returned when no API key matches the presented hash.
var ErrUnknownKey = errors.New("unknown api key")

// APIKeyInfo holds the identity data for a validated API key. Each key
// belongs to exactly one coop member; the gateway integration uses a key of
// its own.
type APIKeyInfo struct {
	KeyHash string
	UserID  string
	Label   string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
