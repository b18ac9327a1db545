package permissions

import (
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const grantKeyPrefix = "rag:grants:"

// CachedSource keeps resolved grants in Redis for a short TTL.
// Redis failures fall back to the wrapped source.
type CachedSource struct {
	next GrantSource
	rdb  *redis.Client
	ttl  time.Duration
	log  *logger.Logger
}

// NewCachedSource wraps next with a Redis cache.
func NewCachedSource(next GrantSource, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedSource) GrantsFor(ctx context.Context, email string) ([]Grant, error) {
	key := grantKeyPrefix + email
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var grants []Grant
		if err := json.Unmarshal(raw, &grants); err == nil {
			return grants, nil
		}
		c.log.WithField("key", key).Warn("缓存的授权数据无法解析，重新加载")
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Warn("读取授权缓存失败")
	}

	grants, err := c.next.GrantsFor(ctx, email)
	if err != nil {
		return nil, err
	}
	if grants == nil {
		grants = []Grant{}
	}
	data, err := json.Marshal(grants)
	if err == nil {
		err = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.log.WithError(err).Warn("写入授权缓存失败")
	}
	return grants, nil
}

// Invalidate drops the cached grants of a user.
func (c *CachedSource) Invalidate(ctx context.Context, email string) error {
	return c.rdb.Del(ctx, grantKeyPrefix+NormalizeEmail(email)).Err()
}
