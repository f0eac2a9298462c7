// Package cache provides a cross-session Redis cache for origin subtitle
// documents and their probed durations. Only origin bytes are cached, never
// rewritten manifests: re-running the rewriter on its own output would
// duplicate the injected alternative-media block.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trinityhades/luna-gateway/internal/metrics"
)

// DefaultTTL bounds how long a cached subtitle document stays fresh
const DefaultTTL = 30 * time.Minute

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Subtitle Document Operations

// GetSubtitleDocument retrieves a cached subtitle document by its origin URL
func (c *Cache) GetSubtitleDocument(ctx context.Context, locator string) (string, bool) {
	doc, err := c.client.Get(ctx, documentKey(locator)).Result()
	if err != nil {
		metrics.CacheMissesTotal.WithLabelValues("document").Inc()
		return "", false
	}
	metrics.CacheHitsTotal.WithLabelValues("document").Inc()
	return doc, true
}

// SetSubtitleDocument caches a subtitle document. Failures are silent; the
// cache is best-effort.
func (c *Cache) SetSubtitleDocument(ctx context.Context, locator, doc string) {
	c.client.Set(ctx, documentKey(locator), doc, c.ttl)
}

// Duration Operations

// GetDuration retrieves a probed subtitle duration in seconds
func (c *Cache) GetDuration(ctx context.Context, locator string) (float64, bool) {
	raw, err := c.client.Get(ctx, durationKey(locator)).Result()
	if err != nil {
		metrics.CacheMissesTotal.WithLabelValues("duration").Inc()
		return 0, false
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	metrics.CacheHitsTotal.WithLabelValues("duration").Inc()
	return d, true
}

// SetDuration caches a probed subtitle duration
func (c *Cache) SetDuration(ctx context.Context, locator string, seconds float64) {
	c.client.Set(ctx, durationKey(locator), strconv.FormatFloat(seconds, 'f', -1, 64), c.ttl)
}

// Keys are derived from the locator hash; subtitle URLs routinely carry
// auth query parameters too long for readable keys
func documentKey(locator string) string {
	return "subtitle:doc:" + hashLocator(locator)
}

func durationKey(locator string) string {
	return "subtitle:dur:" + hashLocator(locator)
}

func hashLocator(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:16])
}
