package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const lookupTimeout = time.Second

// Redis is a Store backed by a Redis server, so sensor values and
// controller state survive restarts.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(addr, prefix string, logger *slog.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		logger: logger,
	}
}

// Ping verifies the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, kind, key)
}

func (r *Redis) Lookup(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	value, err := r.client.Get(ctx, r.key("sensor", key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("sensor lookup failed", slog.String("key", key), slog.Any("err", err))
		}
		return nil, false
	}
	return value, true
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key("sensor", key), value, 0).Err()
}

func (r *Redis) SaveJSON(ctx context.Context, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key("state", key), body, 0).Err()
}

func (r *Redis) LoadJSON(ctx context.Context, key string, value any) (bool, error) {
	body, err := r.client.Get(ctx, r.key("state", key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(body, value)
}
