package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/printer"
	"github.com/dyluth/songgrid/internal/tilelist"
	"github.com/dyluth/songgrid/internal/timespec"
	"github.com/dyluth/songgrid/pkg/grid"
)

type tilesOptions struct {
	output   string
	since    string
	until    string
	username string
}

func newTilesCmd(global *globalOptions) *cobra.Command {
	opts := &tilesOptions{}

	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List stored tiles",
		Long: `List the filled tiles of the grid straight from the cell store.

Output Formats:
  default - Human-readable table with tile, user, age and track id
  jsonl   - Line-delimited JSON, one tile per line

Examples:
  # Tiles edited in the last two hours
  songgrid tiles --since=2h

  # Everything alice placed, for jq
  songgrid tiles --user=alice --output=jsonl | jq .link`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTilesList(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "default", "Output format: default or jsonl")
	cmd.Flags().StringVar(&opts.since, "since", "", "Show tiles edited after time (duration or RFC3339)")
	cmd.Flags().StringVar(&opts.until, "until", "", "Show tiles edited before time (duration or RFC3339)")
	cmd.Flags().StringVar(&opts.username, "user", "", "Show tiles last edited by this username")

	cmd.AddCommand(newTilesGetCmd(global))
	return cmd
}

func runTilesList(cmd *cobra.Command, global *globalOptions, opts *tilesOptions) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	format, err := tilelist.ParseOutputFormat(opts.output)
	if err != nil {
		return p.Error("invalid output format", err.Error(), "Valid formats: default, jsonl")
	}

	now := time.Now()
	since, until, err := timespec.ParseRange(opts.since, opts.until, now)
	if err != nil {
		return p.Error("invalid time filter", err.Error(), "Use a duration like 2h or an RFC3339 timestamp")
	}

	cfg, err := global.loadConfig()
	if err != nil {
		return p.Error("invalid configuration", err.Error())
	}
	store, err := openStore(cfg)
	if err != nil {
		return p.Error("failed to open database", err.Error(), "Set DATABASE_URL or database.url")
	}
	defer store.Close()

	filter := tilelist.Filter{Since: since, Until: until, Username: opts.username}
	if _, err := tilelist.List(context.Background(), store, p.Out(), filter, format, now); err != nil {
		return p.Error("failed to list tiles", err.Error())
	}
	return nil
}

func newTilesGetCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ROW COL",
		Short: "Show one tile as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

			row, rowErr := strconv.Atoi(args[0])
			col, colErr := strconv.Atoi(args[1])
			if rowErr != nil || colErr != nil {
				return p.Error("invalid tile", fmt.Sprintf("ROW and COL must be integers, got %q %q", args[0], args[1]))
			}

			cfg, err := global.loadConfig()
			if err != nil {
				return p.Error("invalid configuration", err.Error())
			}
			a, err := buildApp(cfg, zap.NewNop())
			if err != nil {
				return p.Error("failed to open database", err.Error(), "Set DATABASE_URL or database.url")
			}
			defer a.Close()

			cell, err := a.svc.Get(context.Background(), grid.Coord{Row: row, Col: col})
			if err != nil {
				return p.Error("failed to read tile", err.Error())
			}
			return tilelist.FormatSingleJSON(p.Out(), cell)
		},
	}
}
