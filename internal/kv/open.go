package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	backend "github.com/redis/go-redis/v9"

	"supreme-bot/internal/config"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Backend hands out named documents on the configured storage.
type Backend struct {
	kind   string
	dir    string
	redis  *backend.Client
	prefix string
	pool   *pgxpool.Pool
	table  string
}

func Open(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return &Backend{kind: BackendFile, dir: cfg.Dir}, nil
	case BackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisBackend(client, cfg.Redis.Prefix), nil
	case BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		table := cfg.Postgres.Table
		if table == "" {
			table = "kv_documents"
		}
		if err := EnsurePostgresTable(ctx, pool, table); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return &Backend{kind: BackendPostgres, pool: pool, table: table}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func NewRedisBackend(client *backend.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = "supreme:"
	}
	return &Backend{kind: BackendRedis, redis: client, prefix: prefix}
}

func (b *Backend) Kind() string {
	return b.kind
}

func (b *Backend) Document(name string) Document {
	switch b.kind {
	case BackendRedis:
		return NewRedisDocument(b.redis, b.prefix+name)
	case BackendPostgres:
		return NewPostgresDocument(b.pool, b.table, name)
	default:
		return NewFileDocument(filepath.Join(b.dir, name+".json"))
	}
}

func (b *Backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
