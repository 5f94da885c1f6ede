package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-summary-service/internal/models"
)

// Cache stores summary lists by key. Get returns cached data if present and not
// expired; Delete is used to invalidate after an aggregation writes.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.DailySummary, bool, error)
	Set(ctx context.Context, key string, value []models.DailySummary, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     []models.DailySummary
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns a copy of the cached slice so callers cannot mutate the entry.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.DailySummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	out := make([]models.DailySummary, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.DailySummary, ttl time.Duration) error {
	stored := make([]models.DailySummary, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     stored,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
