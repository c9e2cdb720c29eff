package mpesa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/urbanfoods/backend/pkg/redis"
)

// ErrTokenMiss is returned when no cached credential is available.
var ErrTokenMiss = errors.New("no cached access token")

// TokenCache stores the Daraja bearer credential between requests. The TTL
// passed to Set is already shortened against the provider expiry; the cache
// only has to honor it.
type TokenCache interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

const tokenCacheKey = "mpesa_access_token"

// RedisTokenCache shares the credential across instances.
type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, redis.CacheKey("mpesa", tokenCacheKey))
	if errors.Is(err, redis.ErrCacheMiss) {
		return "", ErrTokenMiss
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, redis.CacheKey("mpesa", tokenCacheKey), token, ttl)
}

// MemoryTokenCache is a process-local fallback used in tests and single
// instance deployments.
type MemoryTokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.now().After(c.expires) {
		return "", ErrTokenMiss
	}
	return c.token, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expires = c.now().Add(ttl)
	return nil
}
