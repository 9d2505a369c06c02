package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rdw-proxy/internal/domain/vehicle"
)

// Redis shares cached records between proxy instances. Redis failures are
// logged and degrade to cache misses.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) (*vehicle.Record, bool) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("redis cache read failed")
		}
		return nil, false
	}

	var rec vehicle.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil, false
	}
	return &rec, true
}

func (r *Redis) Set(ctx context.Context, key string, rec *vehicle.Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis cache write failed")
	}
}
