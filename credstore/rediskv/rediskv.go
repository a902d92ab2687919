// Package rediskv backs the credential store with Redis, for daemon or
// shared-host deployments where a local credential file is not appropriate.
package rediskv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fitsession/fitsession-go/credstore"
)

var _ credstore.KV = (*RedisKV)(nil)

// RedisKV implements credstore.KV on a Redis client. Entries are namespaced
// so several applications can share one database.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// New wraps an existing Redis client. prefix namespaces every key;
// "fitsession" is used when empty.
func New(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "fitsession"
	}
	return &RedisKV{client: client, prefix: prefix}
}

// Connect dials Redis and verifies the connection before returning a backend.
func Connect(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[rediskv.Connect] ping")
	}
	return New(client, ""), nil
}

func (r *RedisKV) key(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(credstore.ErrStorage, "get %q: %v", key, err)
	}
	return value, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "set %q: %v", key, err)
	}
	return nil
}

// SetMulti writes every entry inside one MULTI/EXEC transaction so readers
// never observe a torn batch.
func (r *RedisKV) SetMulti(ctx context.Context, entries map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, r.key(key), value, 0)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(credstore.ErrStorage, "set batch: %v", err)
	}
	return nil
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "del %q: %v", key, err)
	}
	return nil
}

func (r *RedisKV) DelMulti(ctx context.Context, keys ...string) error {
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = r.key(key)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, namespaced...)
		return nil
	})
	if err != nil {
		return errors.Wrapf(credstore.ErrStorage, "del batch: %v", err)
	}
	return nil
}
