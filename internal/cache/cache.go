package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Cache stores weather readings keyed by lowercased city name.
// Get returns a reading only while it is within the backend's freshness window.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherReading, bool, error)
	Set(ctx context.Context, key string, value models.WeatherReading) error
	// Name is a stable backend label for metrics and logs.
	Name() string
}

// InMemoryCache implements Cache with a map guarded by a mutex.
// Entries are not evicted; a stale entry is overwritten by the next Set.
type InMemoryCache struct {
	mu        sync.RWMutex
	data      map[string]cacheEntry
	freshness time.Duration
	now       func() time.Time
}

type cacheEntry struct {
	value    models.WeatherReading
	storedAt time.Time
}

// NewInMemoryCache creates an in-memory cache whose entries stay fresh for freshness.
func NewInMemoryCache(freshness time.Duration) *InMemoryCache {
	return &InMemoryCache{
		data:      make(map[string]cacheEntry),
		freshness: freshness,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (c *InMemoryCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns (reading, true, nil) when the entry exists and is younger than the freshness window.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherReading, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.WeatherReading{}, false, nil
	}
	if c.now().Sub(entry.storedAt) >= c.freshness {
		return models.WeatherReading{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value, replacing any prior entry for key.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{value: value, storedAt: c.now()}
	return nil
}

func (c *InMemoryCache) Name() string { return "in_memory" }
