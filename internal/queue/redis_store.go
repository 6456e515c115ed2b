package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore keeps queue entries as fields of one Redis hash named after the holder.
type RedisStore struct {
	pool   *redis.Pool
	holder string
}

// OpenRedisStore connects to the Redis server at url and verifies it answers.
func OpenRedisStore(ctx context.Context, url, holder string) (*RedisStore, error) {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	store := &RedisStore{pool: pool, holder: holder}
	if err := store.do(ctx, func(c redis.Conn) error {
		_, err := c.Do("PING")
		return err
	}); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("connect queue redis: %w", err)
	}
	return store, nil
}

func (s *RedisStore) do(ctx context.Context, fn func(redis.Conn) error) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// Put writes or overwrites the hash field key.
func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	return s.do(ctx, func(c redis.Conn) error {
		if _, err := c.Do("HSET", s.holder, key, value); err != nil {
			return fmt.Errorf("put queue entry %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes the hash field key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, func(c redis.Conn) error {
		if _, err := c.Do("HDEL", s.holder, key); err != nil {
			return fmt.Errorf("delete queue entry %s: %w", key, err)
		}
		return nil
	})
}

// Snapshot returns every field of the holder hash.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := s.do(ctx, func(c redis.Conn) error {
		values, err := redis.StringMap(c.Do("HGETALL", s.holder))
		if err != nil && err != redis.ErrNil {
			return fmt.Errorf("snapshot queue: %w", err)
		}
		out = values
		return nil
	})
	if out == nil {
		out = map[string]string{}
	}
	return out, err
}

// Close releases pooled connections.
func (s *RedisStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}
