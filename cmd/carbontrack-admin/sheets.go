package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"carbontrack/internal/core"
	gsheet "carbontrack/internal/remote/google"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Google Sheets backend tools",
}

var sheetsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the service account can read the usage sheet",
	Long: `Reads the configured spreadsheet with the service account credentials
from GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE and
prints a summary of the rows the dashboard would see.`,
	Args: cobra.NoArgs,
	RunE: runSheetsCheck,
}

func init() {
	sheetsCmd.AddCommand(sheetsCheckCmd)
	rootCmd.AddCommand(sheetsCmd)
}

func runSheetsCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		UsageSheet:      cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return fmt.Errorf("opening spreadsheet: %w", err)
	}

	records, err := client.FetchUsage(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.GoogleSheetName, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sheet %q: %s rows\n", cfg.GoogleSheetName, humanize.Comma(int64(len(records))))
	if len(records) == 0 {
		return nil
	}

	departments := make(map[string]struct{})
	first, last := records[0].Month, records[0].Month
	var emissions float64
	for _, r := range records {
		departments[r.DepartmentName()] = struct{}{}
		first = min(first, r.Month)
		last = max(last, r.Month)
		emissions += r.Value(core.Emission)
	}
	fmt.Fprintf(out, "Departments: %d\n", len(departments))
	fmt.Fprintf(out, "Months: %s to %s\n", first, last)
	fmt.Fprintf(out, "Total emissions: %s kg CO₂\n", humanize.FormatFloat("#,###.##", emissions))
	return nil
}
