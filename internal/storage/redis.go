package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each namespace as one Redis hash, so clearing an area
// is a single DEL.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a backend writing hashes under prefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "aduan:storage:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(namespace string) string {
	return r.prefix + namespace
}

func (r *RedisBackend) Get(ctx context.Context, namespace string, slot Slot) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key(namespace), string(slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, namespace string, slot Slot, value string) error {
	return r.client.HSet(ctx, r.key(namespace), string(slot), value).Err()
}

func (r *RedisBackend) Remove(ctx context.Context, namespace string, slots ...Slot) error {
	fields := make([]string, len(slots))
	for i, s := range slots {
		fields[i] = string(s)
	}
	return r.client.HDel(ctx, r.key(namespace), fields...).Err()
}

func (r *RedisBackend) Clear(ctx context.Context, namespace string) error {
	return r.client.Del(ctx, r.key(namespace)).Err()
}
