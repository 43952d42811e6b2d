package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/songgrid/internal/config"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "songgrid.yml"

var versionString = "dev"

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	envFile    string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "songgrid",
		Short: "songgrid - a shared grid of songs",
		Long: `songgrid serves a fixed-size grid of cells that anonymous users fill
with Spotify tracks, one edit per client per cooldown window.

Cells are stored in PostgreSQL, cooldowns in Redis, and track details are
resolved from the Spotify Web API on every read.

Configuration comes from songgrid.yml (optional), a .env file and the
environment: DATABASE_URL, REDIS_URL, CLIENT_ID, CLIENT_SECRET, PORT,
EDIT_COOLDOWN_MINUTES, STATIC_DIR, LOG_LEVEL.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to songgrid.yml (default ./songgrid.yml if present)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTilesCmd(opts),
		newCooldownCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the dotenv file, then songgrid.yml and the environment.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		if err := config.LoadDotEnv(o.envFile); err != nil {
			return nil, err
		}
	}

	path := o.configPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to check %s: %w", DefaultConfigFile, err)
		}
	}
	return config.Load(path)
}
