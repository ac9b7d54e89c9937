package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by pgxpool.Pool and anything else that answers a
// connectivity ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabasePingCheck reports whether the store answers a ping. Wired as the
// readiness probe for Postgres.
func DatabasePingCheck(db Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Wrap(err, "database ping")
		}
		return nil
	}
}

// RedisPingCheck reports whether the catalog cache answers a ping. Only
// registered when a Redis URL is configured.
func RedisPingCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		return nil
	}
}

// GoroutineCountCheck fails when the process holds more goroutines than
// threshold. Used as a liveness probe to catch leaks, with a generous limit.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines, limit %d", n, threshold)
		}
		return nil
	}
}
