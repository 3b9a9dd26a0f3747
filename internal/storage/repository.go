// Package storage is the SQLite adapter: usage rows for the dashboard and
// the import path, plus users and sessions for authentication.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/remote"

	_ "modernc.org/sqlite"
)

var (
	_ remote.UsageReader = (*SQLiteRepository)(nil)
	_ remote.UsageWriter = (*SQLiteRepository)(nil)
	_ remote.AuthStore   = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FetchUsage implements remote.UsageReader
func (r *SQLiteRepository) FetchUsage(ctx context.Context) ([]core.UsageRecord, error) {
	rows, err := r.queries.ListUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	records := make([]core.UsageRecord, len(rows))
	for i, row := range rows {
		records[i] = core.UsageRecord{
			Department:   row.Department,
			Month:        row.Month,
			MonthlyUsage: fromNull(row.MonthlyUsage),
			Emission:     fromNull(row.Emission),
		}
	}
	return records, nil
}

// InsertUsage implements remote.UsageWriter. All rows are written in one
// transaction.
func (r *SQLiteRepository) InsertUsage(ctx context.Context, records []core.UsageRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for i, rec := range records {
		err := q.InsertUsage(ctx, InsertUsageParams{
			Department:   rec.Department,
			Month:        rec.Month,
			MonthlyUsage: toNull(rec.MonthlyUsage),
			Emission:     toNull(rec.Emission),
		})
		if err != nil {
			return 0, fmt.Errorf("insert usage row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit usage import: %w", err)
	}

	r.logger.InfoContext(ctx, "Usage rows imported",
		log.FieldRecords, len(records),
		log.FieldOperation, log.OpImport)
	return len(records), nil
}

// CountUsage returns the number of stored usage rows.
func (r *SQLiteRepository) CountUsage(ctx context.Context) (int64, error) {
	n, err := r.queries.CountUsage(ctx)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	row, err := r.queries.CreateUser(ctx, CreateUserParams{
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt.UTC().Format(core.ISOLayout),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return userFromRow(row), nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	row, err := r.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return userFromRow(row), nil
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id int64) (core.User, error) {
	row, err := r.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return userFromRow(row), nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, len(rows))
	for i, row := range rows {
		users[i] = userFromRow(row)
	}
	return users, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	err := r.queries.CreateSession(ctx, SessionRow{
		Token:     s.Token,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.UTC().Format(core.ISOLayout),
		CreatedAt: s.CreatedAt.UTC().Format(core.ISOLayout),
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SessionByToken(ctx context.Context, token string) (core.Session, error) {
	row, err := r.queries.GetSession(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrNoSession
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return core.Session{
		Token:     row.Token,
		UserID:    row.UserID,
		ExpiresAt: parseTime(row.ExpiresAt),
		CreatedAt: parseTime(row.CreatedAt),
	}, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if err := r.queries.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions that expired at or before now.
func (r *SQLiteRepository) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, now.UTC().Format(core.ISOLayout))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}

func userFromRow(row UserRow) core.User {
	return core.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         core.Role(row.Role),
		CreatedAt:    parseTime(row.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(core.ISOLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return core.Float(v.Float64)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
