package app

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Elias24978/safety-app/internal/util"
)

// RunLock guarantees a single digest per key across replicas.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisRunLock takes the lock with SET NX. The key expires on its own and
// is never released early, so a second run on the same day is refused.
type RedisRunLock struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRunLock creates a lock on an existing client.
func NewRedisRunLock(client redis.Cmdable, prefix string) *RedisRunLock {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "safety:digest:lock"
	}
	return &RedisRunLock{client: client, prefix: prefix}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+":"+key, util.NewID(), ttl).Result()
}
