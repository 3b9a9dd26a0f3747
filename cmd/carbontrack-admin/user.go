package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/services"
	"carbontrack/internal/storage"
)

var (
	userEmail    string
	userPassword string
	userAdmin    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account in the SQLite auth store",
	Args:  cobra.NoArgs,
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts in the SQLite auth store",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "account password")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant the admin role")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}

func authService() (*services.AuthService, *storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	svc := services.NewAuthService(repo, cfg.SessionTTL,
		services.WithAuthLogger(logger.WithComponent(log.ComponentAuth)))
	return svc, repo, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	svc, repo, err := authService()
	if err != nil {
		return err
	}
	defer repo.Close()

	role := core.RoleUser
	if userAdmin {
		role = core.RoleAdmin
	}
	u, err := svc.CreateUser(cmd.Context(), userEmail, userPassword, role)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s account %s (id %d)\n", u.Role, u.Email, u.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	svc, repo, err := authService()
	if err != nil {
		return err
	}
	defer repo.Close()

	users, err := svc.Users(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accounts found")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s  %-32s  %-6s  %s\n", "ID", "Email", "Role", "Created")
	fmt.Fprintln(out, "----------------------------------------------------------------------")
	for _, u := range users {
		fmt.Fprintf(out, "%-6d  %-32s  %-6s  %s\n", u.ID, u.Email, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
