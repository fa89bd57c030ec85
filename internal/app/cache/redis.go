package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/breathtrack/backend/pkg/logger"
)

// Redis is a Client backed by a Redis server. Every operation runs under a
// per-call timeout so a slow cache cannot stall request handling, and read
// errors degrade to cache misses.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	log     *logger.Logger
}

var _ Client = (*Redis)(nil)

// NewRedis wraps an existing Redis client. A zero timeout defaults to one
// second.
func NewRedis(client *redis.Client, timeout time.Duration, log *logger.Logger) *Redis {
	if timeout <= 0 {
		timeout = time.Second
	}
	if log == nil {
		log = logger.NewDefault("cache")
	}
	return &Redis{client: client, timeout: timeout, log: log}
}

func (r *Redis) GetJSON(ctx context.Context, key string, dest any) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache entry corrupt")
		return false
	}
	return true
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache write failed")
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache delete failed")
		return err
	}
	return nil
}

func (r *Redis) DeletePattern(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.log.WithError(err).WithField("pattern", pattern).Warn("cache scan failed")
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.WithError(err).WithField("pattern", pattern).Warn("cache invalidation failed")
		return err
	}
	return nil
}

func (r *Redis) GetString(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return "", false
	}
	return value, true
}

func (r *Redis) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache write failed")
		return err
	}
	return nil
}
