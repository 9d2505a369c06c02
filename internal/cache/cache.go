package cache

import (
	"context"

	"rdw-proxy/internal/domain/vehicle"
)

const keyPrefix = "vehicle:"

// Cache stores merged vehicle records for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) (*vehicle.Record, bool)
	Set(ctx context.Context, key string, rec *vehicle.Record)
}

// Key returns the cache key for a normalized plate.
func Key(plate string) string {
	return keyPrefix + plate
}
