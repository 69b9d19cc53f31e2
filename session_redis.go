package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

const redisSessionPrefix = "tapecalc:session:"

var ErrStoreClosed = errors.New("session store closed")

// RedisSessionStore persists session snapshots in Redis with a TTL. Each
// Load rebuilds the engine by replaying the stored tape.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	opts   []calc.Option
	closed atomic.Bool
}

func NewRedisSessionStore(cfg RedisConfig, ttl time.Duration, opts ...calc.Option) *RedisSessionStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSessionStore{client: rdb, ttl: ttl, opts: opts}
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, key string) (*Session, error) {
	data, err := s.client.Get(ctx, redisSessionPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", key, err)
	}
	return restoreSession(rec, s.opts...)
}

func (s *RedisSessionStore) Save(ctx context.Context, key string, session *Session) error {
	data, err := json.Marshal(session.record())
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisSessionPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	return nil
}

// IsEmpty is always true: stored sessions outlive the process.
func (s *RedisSessionStore) IsEmpty() bool {
	return true
}

func (s *RedisSessionStore) Shutdown(_ context.Context) error {
	return s.Close()
}

func (s *RedisSessionStore) Close() error {
	if s.closed.Swap(true) {
		return ErrStoreClosed
	}
	return s.client.Close()
}
