// Package tokens keeps short-lived single-use tokens in Redis. Unsubscribe
// links carry one so a leaked or replayed link cannot flip preferences twice.
package tokens

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a token is absent, expired, or already spent.
var ErrNotFound = errors.New("token not found or already used")

// UnsubscribeKey builds the store key for a recipient's unsubscribe token.
func UnsubscribeKey(email, emailType string) string {
	return strings.ToLower(strings.TrimSpace(email)) + ":" + emailType
}

// Store issues and consumes single-use tokens.
type Store interface {
	// Put registers token under key with the given TTL.
	Put(ctx context.Context, key, token string, ttl time.Duration) error
	// Take atomically consumes and returns the token for key. A second Take
	// for the same key returns ErrNotFound.
	Take(ctx context.Context, key string) (string, error)
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "unsub_token:"}
}

func (s *RedisStore) Put(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, token, ttl).Err()
}

// Take uses GETDEL so concurrent consumers of the same key cannot both win.
func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.GetDel(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
