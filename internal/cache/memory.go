package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"rdw-proxy/internal/domain/vehicle"
)

// Memory is an in-process TTL cache. Reads never extend an entry's life;
// StartJanitor evicts entries nobody asks for again.
type Memory struct {
	items *ttlcache.Cache[string, *vehicle.Record]
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		items: ttlcache.New[string, *vehicle.Record](
			ttlcache.WithTTL[string, *vehicle.Record](ttl),
			ttlcache.WithDisableTouchOnHit[string, *vehicle.Record](),
		),
	}
}

func (m *Memory) Get(_ context.Context, key string) (*vehicle.Record, bool) {
	item := m.items.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *Memory) Set(_ context.Context, key string, rec *vehicle.Record) {
	m.items.Set(key, rec, ttlcache.DefaultTTL)
}

func (m *Memory) Len() int {
	return m.items.Len()
}

// Cleanup evicts expired entries now.
func (m *Memory) Cleanup() {
	m.items.DeleteExpired()
}

// StartJanitor evicts entries as they expire until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context) {
	go m.items.Start()
	go func() {
		<-ctx.Done()
		m.items.Stop()
	}()
}
