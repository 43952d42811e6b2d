package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/songgrid/internal/printer"
)

func newMigrateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tile table and seed every grid cell",
		Long: `Create the tile table if it does not exist and insert an empty row for every
coordinate of the configured grid. Existing rows are left untouched, so the
command is safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg, err := global.loadConfig()
			if err != nil {
				return p.Error("invalid configuration", err.Error())
			}

			store, err := openStore(cfg)
			if err != nil {
				return p.Error("failed to open database", err.Error(), "Set DATABASE_URL or database.url")
			}
			defer store.Close()

			p.Step("Migrating %dx%d grid into table %s\n", cfg.Grid.Rows, cfg.Grid.Cols, cfg.Database.Table)
			if err := migrateStore(context.Background(), store, cfg); err != nil {
				return p.Error("migration failed", err.Error())
			}
			p.Success("Grid ready: %d cells\n", cfg.Grid.Size())
			return nil
		},
	}
}
