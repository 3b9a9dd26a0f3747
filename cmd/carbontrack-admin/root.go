package main

import (
	"github.com/spf13/cobra"

	"carbontrack/internal/cli"
	"carbontrack/internal/config"
	"carbontrack/internal/log"
)

var (
	dbPath string

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "carbontrack-admin",
	Short: "Administer the carbontrack dashboard",
	Long: `carbontrack-admin manages the dashboard's SQLite database, user
accounts and usage imports. Settings come from the same environment
variables (and .env file) as the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
		cfg = config.Load()
		if dbPath != "" {
			cfg.SQLiteDBPath = dbPath
		}
		logger = cli.SetupLogger(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file (default is $SQLITE_DB_PATH)")
}
