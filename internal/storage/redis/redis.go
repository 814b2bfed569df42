// Package redis implements the storage.KV interface on top of a Redis
// server. Each record is a Redis hash, which keeps all fields of a record
// under a single key and makes record deletion a single atomic operation.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vadimbarashkov/keyurl/internal/storage"
)

const defaultScanCount = 100

type Option func(*redis.Options)

func WithPassword(password string) Option {
	return func(opts *redis.Options) {
		opts.Password = password
	}
}

func WithDB(db int) Option {
	return func(opts *redis.Options) {
		opts.DB = db
	}
}

func WithPoolSize(n int) Option {
	return func(opts *redis.Options) {
		opts.PoolSize = n
	}
}

func WithMinIdleConns(n int) Option {
	return func(opts *redis.Options) {
		opts.MinIdleConns = n
	}
}

// Storage is a Redis-backed implementation of storage.KV.
type Storage struct {
	client *redis.Client
}

// New connects to the Redis server at addr and pings it to verify the
// connection before returning.
func New(ctx context.Context, addr string, opts ...Option) (*Storage, error) {
	const op = "storage.redis.New"

	redisOpts := &redis.Options{Addr: addr}
	for _, opt := range opts {
		opt(redisOpts)
	}

	client := redis.NewClient(redisOpts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return &Storage{client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Storage {
	return &Storage{client: client}
}

func (s *Storage) Get(ctx context.Context, key, field string) (string, error) {
	const op = "storage.redis.Storage.Get"

	val, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
		}

		return "", fmt.Errorf("%s: failed to get field %q: %w", op, field, err)
	}

	return val, nil
}

func (s *Storage) Set(ctx context.Context, key string, fields map[string]string) error {
	const op = "storage.redis.Storage.Set"

	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("%s: failed to set fields: %w", op, err)
	}

	return nil
}

func (s *Storage) Increment(ctx context.Context, key, field string, delta int64) (int64, error) {
	const op = "storage.redis.Storage.Increment"

	val, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to increment field %q: %w", op, field, err)
	}

	return val, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	const op = "storage.redis.Storage.Delete"

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}

	return nil
}

func (s *Storage) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	const op = "storage.redis.Storage.Scan"

	iter := s.client.Scan(ctx, 0, pattern, defaultScanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: failed to scan keys: %w", op, err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.client.Close()
}
