package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores identifiers as plain string keys, optionally under a
// prefix so several sites can share one Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
	owned  bool
}

var _ Backend = &RedisBackend{}

type RedisOption func(*RedisBackend)

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.prefix = prefix
	}
}

// NewRedisBackend dials addr. The client is closed with the backend.
func NewRedisBackend(addr string, options ...RedisOption) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("redis session backend: empty address")
	}
	r := NewRedisBackendFromClient(redis.NewClient(&redis.Options{Addr: addr}), options...)
	r.owned = true
	return r, nil
}

// NewRedisBackendFromClient wraps an existing client, which stays owned by
// the caller.
func NewRedisBackendFromClient(client *redis.Client, options ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client, prefix: "paguro:session:"}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis session backend: get")
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis session backend: set")
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis session backend: delete")
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
