package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claimgraph/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down|version",
	Short:     "Manage the sqlite schema",
	Long:      `Applies all pending migrations (up), rolls back the newest one (down), or prints the current schema version.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if app.cfg.Storage.Type == store.TypeMemory {
		return fmt.Errorf("migrate needs sqlite storage")
	}
	db, err := store.OpenSQLiteNoMigrate(cmd.Context(), app.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	}
	if err != nil {
		return err
	}

	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
	return nil
}
