package backend

import (
	"context"
	"fmt"

	"carbontrack/internal/log"
	gsheet "carbontrack/internal/remote/google"
	"carbontrack/internal/remote/memory"
	"carbontrack/internal/remote/postgres"
	"carbontrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the data and auth backends. A SQLite or memory store
// selected for both roles is opened once and shared.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var (
		sqliteRepo *storage.SQLiteRepository
		memStore   *memory.Store
	)

	openSQLite := func() (*storage.SQLiteRepository, error) {
		if sqliteRepo != nil {
			return sqliteRepo, nil
		}
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		sqliteRepo = repo
		res.pingers = append(res.pingers, repo)
		res.cleanup = append(res.cleanup, repo.Close)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	}
	openMemory := func() (*memory.Store, error) {
		if memStore != nil {
			return memStore, nil
		}
		s, err := memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		memStore = s
		f.logger.InfoContext(ctx, "Initialized memory backend", "seed_file", config.SeedFile)
		return s, nil
	}

	fail := func(err error) (*BackendResult, error) {
		res.Cleanup()
		return nil, err
	}

	switch config.Data {
	case MemoryBackend:
		s, err := openMemory()
		if err != nil {
			return fail(err)
		}
		res.Usage, res.Writer = s, s
	case SQLiteBackend:
		repo, err := openSQLite()
		if err != nil {
			return fail(err)
		}
		res.Usage, res.Writer = repo, repo
	case PostgresBackend:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:      config.PostgresURL,
			MaxConns: config.PostgresMaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Postgres backend: %w", err))
		}
		pg := postgres.New(pool)
		res.cleanup = append(res.cleanup, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		res.Usage, res.Writer = pg, pg
		res.pingers = append(res.pingers, pg)
		f.logger.InfoContext(ctx, "Initialized Postgres backend")
	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			UsageSheet:      config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Google Sheets client: %w", err))
		}
		res.Usage = cli
		f.logger.InfoContext(ctx, "Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
	}

	switch config.Auth {
	case MemoryBackend:
		s, err := openMemory()
		if err != nil {
			return fail(err)
		}
		res.Auth = s
	case SQLiteBackend:
		repo, err := openSQLite()
		if err != nil {
			return fail(err)
		}
		res.Auth = repo
	}

	return res, nil
}
