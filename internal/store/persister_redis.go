package store

import (
	"context"
	"errors"
	"fmt"

	"support360/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisPersister keeps each slot in one redis string key.
type RedisPersister struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPersister(rc config.RedisConfig, prefix string) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", rc.Addr(), err)
	}
	return NewRedisPersisterWithClient(client, prefix), nil
}

// NewRedisPersisterWithClient wraps an existing client.
func NewRedisPersisterWithClient(client redis.UniversalClient, prefix string) *RedisPersister {
	return &RedisPersister{client: client, prefix: prefix}
}

func (p *RedisPersister) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := p.client.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, key string, data []byte) error {
	if err := p.client.Set(ctx, p.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (p *RedisPersister) Close() error {
	return p.client.Close()
}
