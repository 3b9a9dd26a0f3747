package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carbontrack/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQLite schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	version, err := storage.RunMigrations(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database %s at schema version %d\n", cfg.SQLiteDBPath, version)
	return nil
}
