package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pellicule:slot:"

// RedisStore keeps slots as Redis string keys.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore. An empty namespace uses the default key prefix;
// otherwise keys are "pellicule:slot:<namespace>:<slot>".
func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	prefix := redisKeyPrefix
	if namespace != "" {
		prefix += namespace + ":"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Get reads the slot key.
func (r *RedisStore) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	data, err := r.rdb.Get(ctx, r.prefix+slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get slot %s: %w", slot, err)
	}
	return data, nil
}

// Put overwrites the slot key without expiry; TTLs are enforced by the payload owner.
func (r *RedisStore) Put(ctx context.Context, slot string, value []byte) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.prefix+slot, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set slot %s: %w", slot, err)
	}
	return nil
}

// Delete removes the slot key.
func (r *RedisStore) Delete(ctx context.Context, slot string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.prefix+slot).Err(); err != nil {
		return fmt.Errorf("redis del slot %s: %w", slot, err)
	}
	return nil
}
