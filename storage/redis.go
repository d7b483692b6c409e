package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "nexus:"

// RedisKV stores each key as a Redis string under a namespace prefix.
// Write plans run inside MULTI/EXEC, so RedisKV is a BatchKVStore.
type RedisKV struct {
	client redis.UniversalClient
	prefix string
	log    *slog.Logger

	ownsClient bool
}

// NewRedisKV wraps client. An empty prefix selects "nexus:".
func NewRedisKV(client redis.UniversalClient, prefix string, log *slog.Logger) (*RedisKV, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisKV{client: client, prefix: prefix, log: log}, nil
}

func (b *RedisKV) key(k string) string { return b.prefix + k }

func (b *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return value, nil
}

func (b *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisKV) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Apply queues every op in one MULTI/EXEC transaction.
func (b *RedisKV) Apply(ctx context.Context, ops []interfaces.KVOp) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case interfaces.KVPut:
				pipe.Set(ctx, b.key(op.Key), op.Value, 0)
			case interfaces.KVDelete:
				pipe.Del(ctx, b.key(op.Key))
			}
		}
		return nil
	})
	if err != nil {
		b.log.Error("Redis transaction failed", "err", err, slog.Int("ops", len(ops)))
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisKV) Available(ctx context.Context) bool {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Warn("Redis backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *RedisKV) Name() string {
	return "redis-" + strings.TrimSuffix(b.prefix, ":")
}

// Close releases the client when the backend created it.
func (b *RedisKV) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}
