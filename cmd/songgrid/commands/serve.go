package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/cellstore"
	"github.com/dyluth/songgrid/internal/config"
	"github.com/dyluth/songgrid/internal/httpapi"
	"github.com/dyluth/songgrid/internal/printer"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API and, when static_dir is set, the frontend.

The server needs a cell store (DATABASE_URL, postgres:// or memory://) and a
Redis instance for cooldowns (REDIS_URL). Spotify credentials (CLIENT_ID,
CLIENT_SECRET) are needed to enrich tiles; without them the read and search
routes answer 503.

Examples:
  # Run against local services
  DATABASE_URL=postgres://grid@localhost/grid REDIS_URL=redis://localhost:6379 songgrid serve

  # Create the table on startup
  songgrid serve --migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, global, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create and seed the tile table before serving")
	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, migrate bool) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := global.loadConfig()
	if err != nil {
		return p.Error("invalid configuration", err.Error(), "Check songgrid.yml and the environment variables")
	}
	if err := cfg.RequireServe(); err != nil {
		return p.Error("configuration incomplete", err.Error(),
			"Set DATABASE_URL and REDIS_URL in the environment or in .env",
			"Set database.url and redis.url in songgrid.yml")
	}

	log, err := config.NewLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := buildApp(cfg, log)
	if err != nil {
		return p.Error("failed to start", err.Error())
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.ping(ctx); err != nil {
		return p.ErrorWithContext("dependency unreachable", err.Error(), map[string]string{
			"Database": redactURL(cfg.Database.URL),
			"Redis":    redactURL(cfg.Redis.URL),
		}, "Check that PostgreSQL and Redis are running and reachable")
	}

	if migrate {
		if err := migrateStore(ctx, a.store, cfg); err != nil {
			return p.Error("migration failed", err.Error())
		}
	}

	if !cfg.HasCredentials() {
		log.Warn("spotify credentials are not configured, tile reads and search will fail")
	} else if _, err := a.spotify.Token(ctx); err != nil {
		log.Error("failed to obtain spotify token, will retry on demand", zap.Error(err))
	}

	srv, err := httpapi.NewServer(a.svc, httpapi.Options{
		Addr:         cfg.Server.Addr(),
		StaticDir:    cfg.Server.StaticDir,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Health: map[string]httpapi.Pinger{
			"redis":    a.gate,
			"database": a.store,
		},
		Logger: log.Named("http"),
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("songgrid started",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("cooldown", cfg.Edit.Cooldown()),
		zap.Int("rows", cfg.Grid.Rows),
		zap.Int("cols", cfg.Grid.Cols))

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return p.Error("server error", err.Error())
		}
		return nil
	}
}

// migrateStore creates and seeds the tile table when the store supports it.
func migrateStore(ctx context.Context, store cellstore.Store, cfg *config.Config) error {
	migrator, ok := store.(cellstore.Migrator)
	if !ok {
		return fmt.Errorf("store does not support migration")
	}
	return migrator.Migrate(ctx, cfg.Grid)
}
