package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements used by the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type UsageRow struct {
	ID           int64
	Department   string
	Month        string
	MonthlyUsage sql.NullFloat64
	Emission     sql.NullFloat64
}

const listUsage = `SELECT id, department, month, monthly_usage, emission
FROM usage_records
ORDER BY month, id`

func (q *Queries) ListUsage(ctx context.Context) ([]UsageRow, error) {
	rows, err := q.db.QueryContext(ctx, listUsage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []UsageRow
	for rows.Next() {
		var i UsageRow
		if err := rows.Scan(&i.ID, &i.Department, &i.Month, &i.MonthlyUsage, &i.Emission); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertUsage = `INSERT INTO usage_records (department, month, monthly_usage, emission)
VALUES (?, ?, ?, ?)`

type InsertUsageParams struct {
	Department   string
	Month        string
	MonthlyUsage sql.NullFloat64
	Emission     sql.NullFloat64
}

func (q *Queries) InsertUsage(ctx context.Context, arg InsertUsageParams) error {
	_, err := q.db.ExecContext(ctx, insertUsage, arg.Department, arg.Month, arg.MonthlyUsage, arg.Emission)
	return err
}

const countUsage = `SELECT COUNT(*) FROM usage_records`

func (q *Queries) CountUsage(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsage).Scan(&n)
	return n, err
}

type UserRow struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    string
}

const createUser = `INSERT INTO users (email, password_hash, role, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, email, password_hash, role, created_at`

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (UserRow, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Email, arg.PasswordHash, arg.Role, arg.CreatedAt)
	var i UserRow
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Role, &i.CreatedAt)
	return i, err
}

const getUserByEmail = `SELECT id, email, password_hash, role, created_at
FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var i UserRow
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Role, &i.CreatedAt)
	return i, err
}

const getUserByID = `SELECT id, email, password_hash, role, created_at
FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (UserRow, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i UserRow
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Role, &i.CreatedAt)
	return i, err
}

const listUsers = `SELECT id, email, password_hash, role, created_at
FROM users ORDER BY email`

func (q *Queries) ListUsers(ctx context.Context) ([]UserRow, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []UserRow
	for rows.Next() {
		var i UserRow
		if err := rows.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Role, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type SessionRow struct {
	Token     string
	UserID    int64
	ExpiresAt string
	CreatedAt string
}

const createSession = `INSERT INTO sessions (token, user_id, expires_at, created_at)
VALUES (?, ?, ?, ?)`

func (q *Queries) CreateSession(ctx context.Context, arg SessionRow) error {
	_, err := q.db.ExecContext(ctx, createSession, arg.Token, arg.UserID, arg.ExpiresAt, arg.CreatedAt)
	return err
}

const getSession = `SELECT token, user_id, expires_at, created_at
FROM sessions WHERE token = ?`

func (q *Queries) GetSession(ctx context.Context, token string) (SessionRow, error) {
	row := q.db.QueryRowContext(ctx, getSession, token)
	var i SessionRow
	err := row.Scan(&i.Token, &i.UserID, &i.ExpiresAt, &i.CreatedAt)
	return i, err
}

const deleteSession = `DELETE FROM sessions WHERE token = ?`

func (q *Queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, token)
	return err
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredSessions(ctx context.Context, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessions, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
