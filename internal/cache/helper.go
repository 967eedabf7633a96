package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ridehail/internal/observability"

	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	s, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, rdb *redis.Client, key string, v any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first, on miss it calls fetch (which must populate dest)
// and stores the result with ttl. Redis failures degrade to calling fetch.
func Aside(ctx context.Context, rdb *redis.Client, name, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := GetJSON(ctx, rdb, key, dest)
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache read failed",
			slog.String("cache", name), slog.String("key", key), slog.String("error", err.Error()))
	}
	if found {
		observability.CacheLookups.WithLabelValues(name, "hit").Inc()
		return nil
	}
	observability.CacheLookups.WithLabelValues(name, "miss").Inc()

	if err := fetch(); err != nil {
		return err
	}

	if err := SetJSON(ctx, rdb, key, dest, ttl); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache write failed",
			slog.String("cache", name), slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}
