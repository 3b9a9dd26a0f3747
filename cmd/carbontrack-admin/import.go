package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"carbontrack/internal/amqp"
	"carbontrack/internal/log"
	"carbontrack/internal/remote"
	"carbontrack/internal/remote/postgres"
	"carbontrack/internal/services"
	"carbontrack/internal/storage"
)

var importBackend string

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import usage rows from a CSV file",
	Long: `Reads department,month,monthly_usage,emission rows and stores them in
SQLite or Postgres. When AMQP_URL is set a usage.imported event is
published so running dashboards refetch.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importBackend, "backend", "sqlite", "destination store (sqlite or postgres)")
	rootCmd.AddCommand(importCmd)
}

// openWriter returns the destination store and a function that releases it.
func openWriter(ctx context.Context, backend string) (remote.UsageWriter, func(), error) {
	switch backend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, nil, fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:      cfg.PostgresURL,
			MaxConns: int32(cfg.PostgresMaxConns),
		})
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported import backend %q: must be sqlite or postgres", backend)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	writer, release, err := openWriter(ctx, importBackend)
	if err != nil {
		return err
	}
	defer release()

	var publisher services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, import will not be announced",
				log.FieldError, err,
				log.FieldOperation, log.OpPublish)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	n, err := services.NewImportService(writer, publisher).ImportCSV(ctx, f, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d usage rows into %s\n", n, importBackend)
	return nil
}
