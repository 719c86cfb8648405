package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "brokerclient:"

// RedisPersister keeps each record under a prefixed Redis key
type RedisPersister struct {
	client *redis.Client
}

// NewRedisPersister connects and pings the server
func NewRedisPersister(ctx context.Context, opts *redis.Options) (*RedisPersister, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPersister{client: client}, nil
}

// Close closes the client
func (p *RedisPersister) Close() error {
	return p.client.Close()
}

func (p *RedisPersister) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := p.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return data, nil
}

func (p *RedisPersister) Store(ctx context.Context, key string, data []byte) error {
	if err := p.client.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
