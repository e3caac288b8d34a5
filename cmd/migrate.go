package cmd

import (
	"context"
	"fmt"

	"holdings-sync/core/database"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/legacy"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the queue, cursor and state tables",
	Long: `Creates or updates the availability_queue, update_cursor and availability_state
tables. With the legacy catalog selected, also reports columns missing from its schema.`,
	RunE: runMigrate,
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp()
	if err != nil {
		return err
	}
	l := a.logger

	if err := a.migrate(ctx); err != nil {
		return err
	}
	l.Info("Sync tables migrated", zap.String("database", a.cfg.Database.Name))

	if a.cfg.Catalog.Source != catalog.SourceLegacy {
		return nil
	}
	db, err := database.Connect(a.cfg.Legacy.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to legacy catalog: %w", err)
	}
	problems, err := legacy.Verify(db, a.cfg.Legacy.Schema)
	if err != nil {
		return fmt.Errorf("failed to verify legacy schema: %w", err)
	}
	for _, p := range problems {
		l.Warn("Legacy schema mismatch", zap.String("problem", p))
	}
	if len(problems) > 0 {
		return fmt.Errorf("legacy schema has %d problems", len(problems))
	}
	l.Info("Legacy schema verified")
	return nil
}
