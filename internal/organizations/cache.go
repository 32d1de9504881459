package organizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugh/chimeo/internal/database/models"
	"github.com/redis/go-redis/v9"
)

const listCacheKey = "chimeo:organizations:verified"

// Cache holds the verified organization listing. It is passed explicitly to
// whoever reads or invalidates it.
type Cache interface {
	Get(ctx context.Context) ([]models.Organization, bool)
	Set(ctx context.Context, orgs []models.Organization)
	Invalidate(ctx context.Context)
}

// MemoryCache is a single-process cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	orgs    []models.Organization
	expires time.Time
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context) ([]models.Organization, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.orgs == nil || c.now().After(c.expires) {
		return nil, false
	}
	out := make([]models.Organization, len(c.orgs))
	copy(out, c.orgs)
	return out, true
}

func (c *MemoryCache) Set(_ context.Context, orgs []models.Organization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgs = append(make([]models.Organization, 0, len(orgs)), orgs...)
	c.expires = c.now().Add(c.ttl)
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgs = nil
}

// RedisCache shares the listing between server replicas. Errors degrade to
// cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	onErr  func(error)
}

func NewRedisCache(client *redis.Client, ttl time.Duration, onErr func(error)) *RedisCache {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &RedisCache{client: client, ttl: ttl, onErr: onErr}
}

func (c *RedisCache) Get(ctx context.Context) ([]models.Organization, bool) {
	data, err := c.client.Get(ctx, listCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.onErr(fmt.Errorf("reading organization cache: %w", err))
		}
		return nil, false
	}
	var orgs []models.Organization
	if err := json.Unmarshal(data, &orgs); err != nil {
		c.onErr(fmt.Errorf("decoding organization cache: %w", err))
		return nil, false
	}
	return orgs, true
}

func (c *RedisCache) Set(ctx context.Context, orgs []models.Organization) {
	data, err := json.Marshal(orgs)
	if err != nil {
		c.onErr(err)
		return
	}
	if err := c.client.Set(ctx, listCacheKey, data, c.ttl).Err(); err != nil {
		c.onErr(fmt.Errorf("writing organization cache: %w", err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, listCacheKey).Err(); err != nil {
		c.onErr(fmt.Errorf("invalidating organization cache: %w", err))
	}
}
