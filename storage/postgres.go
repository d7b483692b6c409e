package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "nexus_kv"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PostgresKV stores keys as rows of a two-column table. Write plans run in
// one transaction, so PostgresKV is a BatchKVStore.
type PostgresKV struct {
	pool  *pgxpool.Pool
	table string
	log   *slog.Logger

	ownsPool bool
}

// NewPostgresKV creates the table if it does not exist.
func NewPostgresKV(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) (*PostgresKV, error) {
	if table == "" {
		table = defaultPostgresTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	b := &PostgresKV{pool: pool, table: table, log: log}
	_, err := pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BYTEA NOT NULL)`, b.ident()))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return b, nil
}

func (b *PostgresKV) ident() string {
	return pgx.Identifier{b.table}.Sanitize()
}

func (b *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, b.ident()), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return value, nil
}

func (b *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := b.pool.Exec(ctx, b.upsertSQL(), key, value); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, b.deleteSQL(), key); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Apply runs ops in a single transaction.
func (b *PostgresKV) Apply(ctx context.Context, ops []interfaces.KVOp) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		switch op.Kind {
		case interfaces.KVPut:
			_, err = tx.Exec(ctx, b.upsertSQL(), op.Key, op.Value)
		case interfaces.KVDelete:
			_, err = tx.Exec(ctx, b.deleteSQL(), op.Key)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *PostgresKV) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, b.ident())
}

func (b *PostgresKV) deleteSQL() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, b.ident())
}

func (b *PostgresKV) Available(ctx context.Context) bool {
	if err := b.pool.Ping(ctx); err != nil {
		b.log.Warn("Postgres backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *PostgresKV) Name() string {
	return "postgres-" + b.table
}

// Close releases the pool when the backend created it.
func (b *PostgresKV) Close() error {
	if b.ownsPool {
		b.pool.Close()
	}
	return nil
}
