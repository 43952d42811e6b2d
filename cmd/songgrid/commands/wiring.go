package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/internal/cellstore"
	"github.com/dyluth/songgrid/internal/config"
	"github.com/dyluth/songgrid/internal/enrich"
	"github.com/dyluth/songgrid/internal/events"
	"github.com/dyluth/songgrid/internal/spotify"
	"github.com/dyluth/songgrid/internal/tiles"
)

const (
	defaultRedisURL = "redis://localhost:6379/0"
	pingTimeout     = 5 * time.Second
)

// app holds the wired components shared by the server and the CLI.
type app struct {
	store   cellstore.Store
	rdb     *redis.Client
	gate    *admission.Gate
	spotify *spotify.Client
	svc     *tiles.Service
}

// Close releases the store and Redis connections.
func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func openStore(cfg *config.Config) (cellstore.Store, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL or database.url)")
	}
	return cellstore.Open(cfg.Database.URL, cellstore.Options{
		Table:            cfg.Database.Table,
		OperationTimeout: cfg.Database.Timeout,
	})
}

// openRedis creates a client for url. The client connects lazily.
func openRedis(url string) (*redis.Client, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.ContextTimeoutEnabled = true
	return redis.NewClient(opts), nil
}

func newGate(cfg *config.Config, rdb redis.Cmdable, log *zap.Logger) (*admission.Gate, error) {
	return admission.NewGate(rdb, cfg.Redis.Namespace, cfg.Edit.Cooldown(), log.Named("admission"),
		admission.WithOperationTimeout(cfg.Redis.Timeout))
}

// buildApp wires every component from cfg.
func buildApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	rdb, err := openRedis(cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rdb = rdb

	gate, err := newGate(cfg, rdb, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gate = gate

	a.spotify = spotify.NewClient(spotify.Options{
		ClientID:        cfg.Spotify.ClientID,
		ClientSecret:    cfg.Spotify.ClientSecret,
		APIBaseURL:      cfg.Spotify.APIBaseURL,
		AccountsBaseURL: cfg.Spotify.AccountsBaseURL,
		Timeout:         cfg.Spotify.Timeout,
		Logger:          log.Named("spotify"),
	})

	pipeline, err := enrich.New(a.spotify, enrich.Options{
		BatchSize:      cfg.Spotify.BatchSize,
		MaxConcurrency: cfg.Spotify.MaxConcurrency,
		Logger:         log.Named("enrich"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	svc, err := tiles.New(tiles.Deps{
		Store:       store,
		Gate:        gate,
		Enricher:    pipeline,
		Searcher:    a.spotify,
		Credentials: a.spotify,
		Notifier:    events.NewPublisher(rdb, cfg.Redis.Namespace),
		Logger:      log.Named("tiles"),
	}, tiles.Options{
		Extent:      cfg.Grid,
		MinUsername: cfg.Edit.MinUsername,
		MaxUsername: cfg.Edit.MaxUsername,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// ping checks both stores.
func (a *app) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.gate.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// redactURL hides the password of a connection URL for display.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
