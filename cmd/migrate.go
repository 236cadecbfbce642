package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verifyOnly bool

// migrateCmd creates or updates the records table.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the records table",
	Long: `Migrates the persisted_records table and verifies its columns.

Examples:
  # Migrate and verify
  migrate

  # Only verify the existing schema
  migrate --verify`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&verifyOnly, "verify", false, "Only verify the schema, do not migrate")
	RootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	if !verifyOnly {
		l.Info("Migrating records table", zap.String("driver", cfg.Database.Driver))
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := store.Verify(ctx); err != nil {
		return err
	}
	l.Info("Records table is up to date")
	return nil
}
