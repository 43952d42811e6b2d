package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/songgrid/internal/enrich"
	"github.com/dyluth/songgrid/internal/events"
	"github.com/dyluth/songgrid/internal/printer"
	"github.com/dyluth/songgrid/internal/tilelist"
	"github.com/dyluth/songgrid/pkg/grid"
)

func newWatchCmd(global *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream tile edits as they are accepted",
		Long: `Stream tile edits accepted by any server sharing the same Redis.

Only edits made while watch is running are shown. Press Ctrl+C to stop.

Examples:
  songgrid watch
  songgrid watch --output=jsonl | jq .username`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

			format, err := tilelist.ParseOutputFormat(output)
			if err != nil {
				return p.Error("invalid output format", err.Error(), "Valid formats: default, jsonl")
			}

			cfg, err := global.loadConfig()
			if err != nil {
				return p.Error("invalid configuration", err.Error())
			}
			rdb, err := openRedis(cfg.Redis.URL)
			if err != nil {
				return p.Error("failed to connect to redis", err.Error(), "Set REDIS_URL or redis.url")
			}
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub, err := events.Subscribe(ctx, rdb, cfg.Redis.Namespace)
			if err != nil {
				return p.Error("failed to subscribe", err.Error(), "Check that Redis is running and reachable")
			}
			defer sub.Close()

			if format == tilelist.OutputFormatDefault {
				p.Step("Watching tile edits (Ctrl+C to stop)\n")
			}
			return streamEvents(sub, p, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "default", "Output format: default or jsonl")
	return cmd
}

// streamEvents prints events until the subscription closes.
func streamEvents(sub *events.Subscription, p *printer.Printer, format tilelist.OutputFormat) error {
	eventsCh, errCh := sub.Events(), sub.Errors()
	for eventsCh != nil {
		select {
		case event, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			if err := printEvent(p, event, format); err != nil {
				return err
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			p.Warning("%v\n", err)
		}
	}
	return nil
}

func printEvent(p *printer.Printer, event events.TileUpdated, format tilelist.OutputFormat) error {
	if format == tilelist.OutputFormatJSONL {
		ts := event.LastUpdated
		return tilelist.FormatJSONL(p.Out(), []grid.Cell{{
			Coord:       event.Coord(),
			Link:        event.Link,
			Username:    event.Username,
			LastUpdated: &ts,
		}})
	}

	track := event.Link
	if id, ok := enrich.ExtractTrackID(event.Link); ok {
		track = id
	}
	p.Info("%s  %-9s %-15s %s\n", event.LastUpdated.Format(time.RFC3339), event.Coord(), event.Username, track)
	return nil
}
