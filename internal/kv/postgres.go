package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type PostgresDocument struct {
	pool  *pgxpool.Pool
	table string
	name  string
}

func NewPostgresDocument(pool *pgxpool.Pool, table, name string) *PostgresDocument {
	return &PostgresDocument{pool: pool, table: table, name: name}
}

func EnsurePostgresTable(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			name TEXT PRIMARY KEY,
			body BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (d *PostgresDocument) Load(ctx context.Context) ([]byte, error) {
	var body []byte
	err := d.pool.QueryRow(ctx, `SELECT body FROM `+d.table+` WHERE name = $1`, d.name).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres load %s: %w", d.name, err)
	}
	if len(body) == 0 {
		return nil, ErrNotFound
	}
	return body, nil
}

func (d *PostgresDocument) Save(ctx context.Context, data []byte) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO `+d.table+` (name, body, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, d.name, data)
	if err != nil {
		return fmt.Errorf("postgres save %s: %w", d.name, err)
	}
	return nil
}
