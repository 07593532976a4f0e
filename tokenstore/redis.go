package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps values under "{prefix}:{origin}:{key}".
type RedisStorage struct {
	rdb    redis.UniversalClient
	prefix string
	origin string
}

// NewRedisStorage returns a Storage on rdb. An empty prefix defaults to "slowfall".
func NewRedisStorage(rdb redis.UniversalClient, prefix, origin string) *RedisStorage {
	if prefix == "" {
		prefix = "slowfall"
	}
	return &RedisStorage{rdb: rdb, prefix: prefix, origin: origin}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + ":" + s.origin + ":" + k
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// RedisChannel broadcasts Messages as JSON over Redis pub/sub.
type RedisChannel struct {
	rdb  redis.UniversalClient
	name string
}

// NewRedisChannel returns a Channel publishing on name (DefaultChannelName if empty).
func NewRedisChannel(rdb redis.UniversalClient, name string) *RedisChannel {
	if name == "" {
		name = DefaultChannelName
	}
	return &RedisChannel{rdb: rdb, name: name}
}

func (c *RedisChannel) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, c.name, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated subscription and delivers decoded messages on a
// background goroutine until unsubscribe is called. Undecodable payloads are
// dropped.
func (c *RedisChannel) Subscribe(fn func(Message)) (func(), error) {
	ctx := context.Background()
	ps := c.rdb.Subscribe(ctx, c.name)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			fn(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { ps.Close() })
	}, nil
}
