package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quangtran/chatchit-server/internal/app"
	"github.com/quangtran/chatchit-server/internal/auth"
	"github.com/quangtran/chatchit-server/internal/config"
	"github.com/quangtran/chatchit-server/internal/log"
	"github.com/quangtran/chatchit-server/internal/store"
	"github.com/quangtran/chatchit-server/internal/store/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatchit",
		Short:         "Multi-room chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(seedCmd(&configPath))
	root.AddCommand(tokenCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("info")
			cfg, path, err := config.Load(logger, *configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting chat server")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&overrides.NATSURL, "nats-url", "", "NATS server URL (empty for in-process feed)")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	return cmd
}

// seedCmd creates the starter rooms and memberships for a fresh database.
func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with starter rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("info")
			cfg, _, err := config.Load(logger, *configPath)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			rooms := []struct {
				name    string
				private bool
			}{
				{"General", false},
				{"Random", false},
				{"Tech Talk", false},
			}
			for _, r := range rooms {
				room, err := st.CreateRoom(ctx, r.name, r.private)
				if err != nil {
					logger.Warn().Err(err).Str("room", r.name).Msg("skipping room")
					continue
				}
				if err := st.AddMember(ctx, room.ID, "admin", store.RoleOwner); err != nil {
					return err
				}
				logger.Info().Str("room", room.Name).Str("id", room.ID).Msg("room created")
			}
			return nil
		},
	}
}

// tokenCmd mints a JWT for local testing against the REST and WS endpoints.
func tokenCmd(configPath *string) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("warn")
			cfg, _, err := config.Load(logger, *configPath)
			if err != nil {
				return err
			}

			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret: []byte(cfg.JWTSecret),
				TTL:    24 * time.Hour,
			}, user, user)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "dev", "user id to embed in the token")
	return cmd
}
