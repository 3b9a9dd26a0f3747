package backend

import (
	"context"
	"errors"
	"slices"

	"carbontrack/internal/remote"
)

// BackendType names a data or auth backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
)

func (b BackendType) String() string {
	return string(b)
}

// IsValid reports whether b can serve usage rows
func (b BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), b)
}

// CanStoreAuth reports whether b can hold users and sessions
func (b BackendType) CanStoreAuth() bool {
	return b == MemoryBackend || b == SQLiteBackend
}

// Pinger is implemented by backends that can report reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the adapters selected by configuration
type BackendResult struct {
	Usage   remote.UsageReader
	Auth    remote.AuthStore
	Writer  remote.UsageWriter // nil for read-only backends
	pingers []Pinger
	cleanup []CleanupFunc
}

// Ready pings every backend that supports it
func (r *BackendResult) Ready(ctx context.Context) error {
	var errs []error
	for _, p := range r.pingers {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cleanup releases backend resources in reverse creation order
func (r *BackendResult) Cleanup() error {
	var errs []error
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		if err := r.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Data BackendType
	Auth BackendType

	SQLiteDBPath string
	SeedFile     string

	PostgresURL      string
	PostgresMaxConns int32

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}
