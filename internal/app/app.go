package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/auth"
	"github.com/quangtran/chatchit-server/internal/config"
	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/feed"
	"github.com/quangtran/chatchit-server/internal/store"
	"github.com/quangtran/chatchit-server/internal/store/sqlite"
	transporthttp "github.com/quangtran/chatchit-server/internal/transport/http"
)

// App wires together store, feed, core, and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	notifier        *core.Notifier
	store           store.Store
	feed            feed.Feed
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// An empty NATS URL keeps the feed in-process; useful for single-node
	// deployments and local development.
	var f feed.Feed
	if cfg.NATSURL != "" {
		f, err = feed.NewNATS(cfg.NATSURL, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init feed: %w", err)
		}
		logger.Info().Str("nats_url", cfg.NATSURL).Msg("connected to nats feed")
	} else {
		f = feed.NewMemory()
		logger.Info().Msg("using in-process feed")
	}

	jwtConfig := &auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    24 * time.Hour,
	}

	registry := core.NewRegistry()
	notifier := core.NewNotifier(f, registry, logger)
	messageLog := core.NewMessageLog(st, f, logger)
	tracker := core.NewReadTracker(st, registry, logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Store:    st,
		Log:      messageLog,
		Tracker:  tracker,
		Registry: registry,
		JWT:      jwtConfig,
		Logger:   logger,
	}, *cfg)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		notifier:        notifier,
		store:           st,
		feed:            f,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	notifierCtx, stopNotifier := context.WithCancel(ctx)
	defer stopNotifier()
	go func() {
		if err := a.notifier.Run(notifierCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("notifier stopped")
		}
	}()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the feed, database, and other resources.
func (a *App) cleanup() {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close feed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
