package icon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested host has no cached icon
	ErrCacheMiss = errors.New("icon cache miss")

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ainav_icon_cache_hits_total",
			Help: "Total number of icon cache hits",
		},
	)
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ainav_icon_cache_misses_total",
			Help: "Total number of icon cache misses",
		},
	)
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainav_icon_cache_errors_total",
			Help: "Total number of icon cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)
)

// Entry is a cached favicon blob.
type Entry struct {
	Data        []byte    `json:"data"`
	ContentType string    `json:"content_type"`
	CachedAt    time.Time `json:"cached_at"`
}

// cacheKey generates a deterministic Redis key for a host.
// Format: ainav:icon:<host>
func cacheKey(host string) string {
	return "ainav:icon:" + strings.ToLower(host)
}

// Cache stores favicon blobs in Redis with a fixed TTL. A nil Redis client
// disables caching entirely; Get always misses and Set is a no-op, so the
// fetcher degrades to fetching on every request.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates an icon cache. redisClient may be nil to run without
// a cache backend.
func NewCache(redisClient *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{redis: redisClient, ttl: ttl}
}

// Get retrieves the cached icon for a host.
// Returns ErrCacheMiss if the host is not cached.
func (c *Cache) Get(ctx context.Context, host string) (*Entry, error) {
	if c.redis == nil {
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := c.redis.Get(ctx, cacheKey(host)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("invalid icon cache entry: %w", err)
	}

	cacheHits.Inc()
	return &entry, nil
}

// Set stores an icon for a host with the configured TTL.
func (c *Cache) Set(ctx context.Context, host string, entry *Entry) error {
	if c.redis == nil {
		return nil
	}
	if entry == nil {
		return fmt.Errorf("icon cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal icon cache entry: %w", err)
	}

	if err := c.redis.Set(ctx, cacheKey(host), data, c.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
