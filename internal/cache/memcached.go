package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const keyPrefix = "weather:"

// MemcachedCache implements Cache using memcached. Item expiration is the
// freshness window, so memcached evicts stale readings itself.
type MemcachedCache struct {
	client    *memcache.Client
	freshness time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, freshness time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, freshness: freshness}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// maxKeyLen is memcached's key length limit in bytes.
const maxKeyLen = 250

// itemKey maps a city key onto memcached's key alphabet (no spaces or control
// characters). Keys over maxKeyLen bytes are replaced by their SHA-1 digest.
func itemKey(k string) string {
	key := keyPrefix + strings.ReplaceAll(k, " ", "_")
	if len(key) <= maxKeyLen {
		return key
	}
	sum := sha1.Sum([]byte(k))
	return keyPrefix + "sha1:" + hex.EncodeToString(sum[:])
}

// expiration converts the freshness window to whole seconds, rounding up so
// sub-second windows still store the item.
func (c *MemcachedCache) expiration() int32 {
	sec := int32((c.freshness + time.Second - 1) / time.Second)
	const maxRelativeExp = 30 * 24 * 60 * 60
	if sec <= 0 {
		return 1
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return sec
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherReading, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherReading{}, false, ctx.Err()
	}
	item, err := c.client.Get(itemKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.WeatherReading{}, false, nil
		}
		return models.WeatherReading{}, false, err
	}
	data, err := decodeEntry(item.Value)
	if err != nil {
		return models.WeatherReading{}, false, err
	}
	return data, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherReading) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        itemKey(key),
		Value:      raw,
		Expiration: c.expiration(),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}

func (c *MemcachedCache) Name() string { return "memcached" }
