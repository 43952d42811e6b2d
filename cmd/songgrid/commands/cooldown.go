package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/internal/printer"
)

func newCooldownCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect or clear edit cooldowns",
		Long: `Inspect or clear the per-client edit cooldown kept in Redis.

IDENTITY is the client address the server saw: the first X-Forwarded-For
entry or the peer IP.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show IDENTITY",
			Short: "Show the time left before IDENTITY may edit again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
				gate, closeFn, err := openGate(global)
				if err != nil {
					return p.Error("failed to connect to redis", err.Error(), "Set REDIS_URL or redis.url")
				}
				defer closeFn()

				remaining, err := gate.RemainingTime(context.Background(), args[0])
				if err != nil {
					return p.Error("failed to read cooldown", err.Error())
				}
				p.Cooldown(args[0], remaining)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear IDENTITY",
			Short: "Let IDENTITY edit again immediately",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
				gate, closeFn, err := openGate(global)
				if err != nil {
					return p.Error("failed to connect to redis", err.Error(), "Set REDIS_URL or redis.url")
				}
				defer closeFn()

				cleared, err := gate.Release(context.Background(), args[0])
				if err != nil {
					return p.Error("failed to clear cooldown", err.Error())
				}
				if !cleared {
					p.Info("%s has no active cooldown\n", args[0])
					return nil
				}
				p.Success("Cleared cooldown for %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

// openGate connects to the rate-limit store only.
func openGate(global *globalOptions) (*admission.Gate, func(), error) {
	cfg, err := global.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rdb, err := openRedis(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	gate, err := newGate(cfg, rdb, zap.NewNop())
	if err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return gate, func() { rdb.Close() }, nil
}
