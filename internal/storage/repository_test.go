package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"carbontrack/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "carbontrack.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 2 || v2 != 2 {
		t.Fatalf("unexpected versions %d, %d", v1, v2)
	}
}

func TestUsageRoundTripKeepsNulls(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := []core.UsageRecord{
		{Department: "IT", Month: "2025-03-15T00:00:00Z", MonthlyUsage: core.Float(100), Emission: core.Float(10)},
		{Department: "", Month: "2025-02-10T00:00:00Z", Emission: core.Float(5)},
	}
	n, err := repo.InsertUsage(ctx, in)
	if err != nil || n != 2 {
		t.Fatalf("insert: n=%d err=%v", n, err)
	}

	out, err := repo.FetchUsage(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	// ordered by month
	if out[0].Month != "2025-02-10T00:00:00Z" || out[0].MonthlyUsage != nil || *out[0].Emission != 5 {
		t.Fatalf("unexpected first row: %+v", out[0])
	}
	if out[1].Department != "IT" || *out[1].MonthlyUsage != 100 {
		t.Fatalf("unexpected second row: %+v", out[1])
	}

	count, err := repo.CountUsage(ctx)
	if err != nil || count != 2 {
		t.Fatalf("count = %d err=%v", count, err)
	}
}

func TestUsersAndSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	u, err := repo.CreateUser(ctx, core.User{Email: "a@example.org", PasswordHash: "h", Role: core.RoleAdmin, CreatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 || u.Role != core.RoleAdmin || !u.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := repo.CreateUser(ctx, core.User{Email: "a@example.org", PasswordHash: "x", Role: core.RoleUser, CreatedAt: now}); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := repo.UserByEmail(ctx, "missing@example.org"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if got, err := repo.UserByID(ctx, u.ID); err != nil || got.Email != u.Email {
		t.Fatalf("user by id: %+v err=%v", got, err)
	}

	s := core.Session{Token: "tok", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := repo.SessionByToken(ctx, "tok")
	if err != nil || got.UserID != u.ID || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("session: %+v err=%v", got, err)
	}

	purged, err := repo.PurgeExpiredSessions(ctx, now.Add(2*time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("purge: n=%d err=%v", purged, err)
	}
	if _, err := repo.SessionByToken(ctx, "tok"); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("list users: %v err=%v", users, err)
	}
}

func TestDeleteSession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	u, err := repo.CreateUser(ctx, core.User{Email: "b@example.org", PasswordHash: "h", Role: core.RoleUser, CreatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.CreateSession(ctx, core.Session{Token: "t2", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := repo.DeleteSession(ctx, "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.SessionByToken(ctx, "t2"); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after delete, got %v", err)
	}
}
