package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"huddle/internal/metrics"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

const (
	keyPrefix = "huddle:project:"

	// notFoundMarker is stored for ids the directory does not know.
	notFoundMarker = "!"

	DefaultTTL         = 5 * time.Minute
	DefaultNegativeTTL = 30 * time.Second
)

// Cache is a Redis read-through cache in front of a ProjectDirectory
// ARCHITECTURAL DISCOVERY: Redis failures never fail a lookup, the cache
// logs and falls through to the backing directory
type Cache struct {
	next        interfaces.ProjectDirectory
	rdb         *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
	logger      zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long found projects stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNegativeTTL sets how long unknown ids stay cached. Zero disables
// negative caching.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= 0 {
			c.negativeTTL = ttl
		}
	}
}

// NewCache wraps next with a Redis cache.
func NewCache(next interfaces.ProjectDirectory, rdb *redis.Client, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		next:        next,
		rdb:         rdb,
		ttl:         DefaultTTL,
		negativeTTL: DefaultNegativeTTL,
		logger:      logger.With().Str("component", "project_cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(projectID string) string {
	return keyPrefix + types.NormalizeProjectID(projectID)
}

// Lookup returns the project from Redis when present, otherwise from the
// backing directory, populating the cache on the way out.
func (c *Cache) Lookup(ctx context.Context, projectID string) (*types.Project, error) {
	projectID = types.NormalizeProjectID(projectID)
	key := cacheKey(projectID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			metrics.ProjectCacheLookups.WithLabelValues("hit").Inc()
			return nil, interfaces.ErrProjectNotFound
		}
		var project types.Project
		jsonErr := json.Unmarshal(data, &project)
		if jsonErr == nil {
			metrics.ProjectCacheLookups.WithLabelValues("hit").Inc()
			return &project, nil
		}
		metrics.ProjectCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Err(jsonErr).Str("project_id", projectID).Msg("discarding undecodable cache entry")
	case errors.Is(err, redis.Nil):
		metrics.ProjectCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.ProjectCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("project_id", projectID).Msg("cache read failed, falling through")
	}

	project, err := c.next.Lookup(ctx, projectID)
	if errors.Is(err, interfaces.ErrProjectNotFound) {
		if c.negativeTTL > 0 {
			c.store(ctx, key, []byte(notFoundMarker), c.negativeTTL)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(project); err == nil {
		c.store(ctx, key, encoded, c.ttl)
	}
	return project, nil
}

func (c *Cache) store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate drops the cached entry for projectID.
func (c *Cache) Invalidate(ctx context.Context, projectID string) error {
	if err := c.rdb.Del(ctx, cacheKey(projectID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate project %s: %w", projectID, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
