// Package presence keeps the distinct-viewer set of each livestream in Redis
// so every gateway process sees the same count.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store counts distinct viewers per livestream.
type Store interface {
	Add(ctx context.Context, livestreamID, userID string) (int64, error)
	Remove(ctx context.Context, livestreamID, userID string) (int64, error)
	Count(ctx context.Context, livestreamID string) (int64, error)
	Clear(ctx context.Context, livestreamID string) error
	Touch(ctx context.Context, livestreamID string) (bool, error)
}

// RedisStore keeps one set per livestream with a sliding expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store. Keys look like "<prefix>:livestream:<id>:viewers".
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(livestreamID string) string {
	return fmt.Sprintf("%s:livestream:%s:viewers", s.prefix, livestreamID)
}

// Add inserts userID, refreshes the expiry and returns the set size.
func (s *RedisStore) Add(ctx context.Context, livestreamID, userID string) (int64, error) {
	key := s.key(livestreamID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, s.ttl)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("presence add: %w", err)
	}
	return card.Val(), nil
}

// Remove drops userID. Removing a non-member is a no-op.
func (s *RedisStore) Remove(ctx context.Context, livestreamID, userID string) (int64, error) {
	key := s.key(livestreamID)
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, key, userID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("presence remove: %w", err)
	}
	return card.Val(), nil
}

// Count returns the number of distinct viewers.
func (s *RedisStore) Count(ctx context.Context, livestreamID string) (int64, error) {
	n, err := s.client.SCard(ctx, s.key(livestreamID)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}

// Clear wipes the set, typically when a stream ends.
func (s *RedisStore) Clear(ctx context.Context, livestreamID string) error {
	if err := s.client.Del(ctx, s.key(livestreamID)).Err(); err != nil {
		return fmt.Errorf("presence clear: %w", err)
	}
	return nil
}

// Touch slides the expiry of a live set. It reports false when the set no
// longer exists, in which case nothing is created.
func (s *RedisStore) Touch(ctx context.Context, livestreamID string) (bool, error) {
	ok, err := s.client.Expire(ctx, s.key(livestreamID), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("presence touch: %w", err)
	}
	return ok, nil
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
