// Package remote declares the ports through which the dashboard reaches
// its data and auth backends.
package remote

import (
	"context"

	"carbontrack/internal/core"
)

// Ports for outbound adapters.
type (
	// UsageReader returns every usage row, unfiltered.
	UsageReader interface {
		FetchUsage(ctx context.Context) ([]core.UsageRecord, error)
	}

	// UsageWriter bulk-inserts usage rows. Only the admin import path uses it.
	UsageWriter interface {
		InsertUsage(ctx context.Context, records []core.UsageRecord) (int, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id int64) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		SessionByToken(ctx context.Context, token string) (core.Session, error)
		DeleteSession(ctx context.Context, token string) error
	}

	// AuthStore is the full persistence surface needed by the auth service.
	AuthStore interface {
		UserStore
		SessionStore
	}
)
