package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// CacheConfig contains result cache configuration.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
}

// ResultCache is a Redis cache for retrieval results, keyed by query, depth,
// and retriever configuration. A cache failure is never a request failure:
// misses and errors both fall through to the retrievers.
type ResultCache struct {
	client *redis.Client
	config CacheConfig
	logger *logger.Logger
	hits   int64
	misses int64
}

// CacheStats reports cache performance.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewResultCache connects to Redis and verifies the connection.
func NewResultCache(config CacheConfig, log *logger.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Retrieval result cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return &ResultCache{
		client: client,
		config: config,
		logger: log,
	}, nil
}

func resultKey(query, retrieverName string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", query, topK, retrieverName)))
	return "docguard:results:" + hex.EncodeToString(sum[:])
}

// Get returns cached chunks for the query, or (nil, false) on a miss. A
// corrupt entry is deleted and treated as a miss.
func (c *ResultCache) Get(ctx context.Context, query, retrieverName string, topK int) ([]Chunk, bool) {
	key := resultKey(query, retrieverName, topK)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		c.logger.Warn("Deleting corrupt cache entry", zap.Error(err))
		c.client.Del(ctx, key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return chunks, true
}

// Set stores chunks for the query with the configured TTL. Failures are
// logged and swallowed.
func (c *ResultCache) Set(ctx context.Context, query, retrieverName string, topK int, chunks []Chunk) {
	data, err := json.Marshal(chunks)
	if err != nil {
		c.logger.Warn("Failed to marshal chunks for cache", zap.Error(err))
		return
	}

	ttl := c.config.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if err := c.client.Set(ctx, resultKey(query, retrieverName, topK), data, ttl).Err(); err != nil {
		c.logger.Warn("Failed to write cache entry", zap.Error(err))
	}
}

// GetStats returns hit/miss counters.
func (c *ResultCache) GetStats() CacheStats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	stats := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Close closes the Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

// maskRedisURL masks the password in a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") && strings.Contains(url, ":") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			schemeAndAuth := parts[0]
			if idx := strings.LastIndex(schemeAndAuth, ":"); idx > strings.Index(schemeAndAuth, "//") {
				return schemeAndAuth[:idx+1] + "***@" + strings.Join(parts[1:], "@")
			}
		}
	}
	return url
}
