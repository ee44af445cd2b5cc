package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/fluxscan/internal/storage"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	Long: `Create the scanner, watchlist, schedule, history and result tables
when they do not exist. Safe to run repeatedly.

Example:
  DATABASE_URL=postgres://... go run ./cmd/fluxscan migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{requireDB: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := storage.Migrate(cmd.Context(), a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	PrintSuccess("Schema is up to date")
	return nil
}
