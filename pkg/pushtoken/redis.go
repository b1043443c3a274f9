package pushtoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "safety:fcm_token"

// RedisStore keeps tokens as plain string keys "<prefix>:<recipientId>".
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(recipientID string) string {
	return s.prefix + ":" + recipientID
}

// Lookup returns the token stored for recipientID.
func (s *RedisStore) Lookup(ctx context.Context, recipientID string) (string, bool, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return "", false, ErrEmptyRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	token, err := s.client.Get(ctx, s.key(recipientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

// Save overwrites the token of recipientID. Tokens do not expire.
func (s *RedisStore) Save(ctx context.Context, recipientID, token string) error {
	recipientID, token, err := normalize(recipientID, token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, s.key(recipientID), token, 0).Err()
}
