// Package postgres reads and imports usage rows in a PostgreSQL
// electricity_usage table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carbontrack/internal/core"
	"carbontrack/internal/remote"
)

var (
	_ remote.UsageReader = (*Store)(nil)
	_ remote.UsageWriter = (*Store)(nil)
)

// Months are rendered in the same fixed-width UTC layout as core.ISOLayout
// so lexical range checks keep working.
const selectUsage = `SELECT department,
       to_char(month AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'),
       monthly_usage,
       emission
FROM electricity_usage
ORDER BY month`

const insertUsage = `INSERT INTO electricity_usage (department, month, monthly_usage, emission)
VALUES ($1, $2::timestamptz, $3, $4)`

const createSchema = `CREATE TABLE IF NOT EXISTS electricity_usage (
    id            BIGSERIAL PRIMARY KEY,
    department    TEXT NOT NULL DEFAULT '',
    month         TIMESTAMPTZ NOT NULL,
    monthly_usage DOUBLE PRECISION,
    emission      DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS electricity_usage_month_idx ON electricity_usage (month)`

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MaxConnIdleTime time.Duration
}

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens and pings a pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the usage table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSchema); err != nil {
		return fmt.Errorf("create electricity_usage: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) FetchUsage(ctx context.Context) ([]core.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, selectUsage)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.UsageRecord, error) {
		var r core.UsageRecord
		err := row.Scan(&r.Department, &r.Month, &r.MonthlyUsage, &r.Emission)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan usage: %w", err)
	}
	return records, nil
}

// InsertUsage writes all records in one transaction using a batch.
func (s *Store) InsertUsage(ctx context.Context, records []core.UsageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertUsage, r.Department, r.Month, r.MonthlyUsage, r.Emission)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert usage batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit usage import: %w", err)
	}
	return len(records), nil
}
