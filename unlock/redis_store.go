package unlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection for RedisStore
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// RedisStore implements FlagStore on a Redis key, for servers running more
// than one replica.
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
}

// NewRedisStore opens a client with opts and verifies it with PING
func NewRedisStore(ctx context.Context, opts RedisOptions, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Address, err)
	}
	return &RedisStore{client: client, key: keyOrDefault(key), owned: true}, nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: keyOrDefault(key)}
}

func (s *RedisStore) ReadFlag(ctx context.Context) (bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read unlock flag: %w", err)
	}
	return parseFlag(raw)
}

func (s *RedisStore) WriteFlag(ctx context.Context, unlocked bool) error {
	var err error
	if unlocked {
		err = s.client.Set(ctx, s.key, flagTrue, 0).Err()
	} else {
		err = s.client.Del(ctx, s.key).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to write unlock flag: %w", err)
	}
	return nil
}

// Close closes the client if the store opened it
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
