package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/crimson-sun/quill/internal/model"
)

const (
	defaultRedisKey        = "quill:profile"
	defaultRedisMaxRetries = 3
)

// Redis is a Store backed by a capped Redis list. New records are pushed at
// the head and the list is trimmed to capacity in the same transaction.
type Redis struct {
	client   redis.UniversalClient
	key      string
	capacity int64

	closeOnce sync.Once
	closeErr  error
}

// NewRedis wraps an existing client. An empty key uses "quill:profile".
func NewRedis(client redis.UniversalClient, key string, capacity int) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Redis{client: client, key: key, capacity: int64(capacity)}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr, key string, capacity int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: defaultRedisMaxRetries,
	})
	s := NewRedis(client, key, capacity)
	if err := s.pingWithRetry(ctx, defaultRedisMaxRetries); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("profile: redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Redis) Insert(ctx context.Context, rec model.ProfileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, s.capacity-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("profile: redis insert: %w", err)
	}
	return nil
}

func (s *Redis) Find(ctx context.Context, q Query) ([]model.ProfileRecord, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return filter(recs, q), nil
}

func (s *Redis) Count(ctx context.Context, q Query) (int, error) {
	q.Limit = 0
	recs, err := s.Find(ctx, q)
	return len(recs), err
}

func (s *Redis) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("profile: redis clear: %w", err)
	}
	return nil
}

// Close releases Redis resources. It is idempotent.
func (s *Redis) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// all returns every stored record, newest first. Entries that fail to
// decode are skipped.
func (s *Redis) all(ctx context.Context) ([]model.ProfileRecord, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("profile: redis scan: %w", err)
	}
	out := make([]model.ProfileRecord, 0, len(raw))
	for _, item := range raw {
		var r model.ProfileRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Redis) pingWithRetry(ctx context.Context, maxRetries uint64) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(func() error {
		return s.client.Ping(ctx).Err()
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))
}
