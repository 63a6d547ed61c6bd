package kv

import (
	"context"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

type RedisDocument struct {
	client *backend.Client
	key    string
}

func NewRedisDocument(client *backend.Client, key string) *RedisDocument {
	return &RedisDocument{client: client, key: key}
}

func (d *RedisDocument) Load(ctx context.Context) ([]byte, error) {
	data, err := d.client.Get(ctx, d.key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", d.key, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (d *RedisDocument) Save(ctx context.Context, data []byte) error {
	if err := d.client.Set(ctx, d.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", d.key, err)
	}
	return nil
}
