package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"plume/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Pages is an explicit handle for the short-TTL page cache over the
// index listing. It is passed into the server rather than accessed as
// ambient state, and it is invalidated by time only, never by writes:
// a freshly published post may stay off the cached index until the TTL
// expires. That staleness window is accepted behavior.
type Pages struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPages builds a page cache handle. A nil client disables caching;
// every lookup then misses and every store is a no-op.
func NewPages(client *redis.Client, ttl time.Duration) *Pages {
	return &Pages{client: client, ttl: ttl}
}

// IndexKey returns the cache key for one page of the index listing.
func IndexKey(page int) string {
	return fmt.Sprintf("pages:index:%d", page)
}

// Get attempts to load a cached page into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) on a miss.
func (p *Pages) Get(ctx context.Context, key string, dest any) (bool, error) {
	if p == nil || p.client == nil {
		return false, nil
	}
	s, err := p.client.Get(ctx, key).Result()
	if err == redis.Nil {
		middleware.PageCacheMisses.Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	middleware.PageCacheHits.Inc()
	return true, nil
}

// Set stores a rendered page under key for the configured TTL.
func (p *Pages) Set(ctx context.Context, key string, v any) error {
	if p == nil || p.client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, key, b, p.ttl).Err()
}

// Fetch tries the cache first and on a miss calls fetch (which must
// populate dest), then stores the result best-effort.
func (p *Pages) Fetch(ctx context.Context, key string, dest any, fetch func() error) error {
	found, err := p.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	_ = p.Set(ctx, key, dest)
	return nil
}
