package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"talk2me/internal/config"
	"talk2me/internal/cryptoenv"
	"talk2me/internal/dispatcher"
	"talk2me/internal/federation"
	"talk2me/internal/store"
)

// newServeCmd builds `talk2me serve front|chat`, adapted from the teacher's
// flag-based cmd/server/main.go into a cobra subcommand with TOML config
// (spec §6, §9 — "inject [the store] through the handler constructor
// rather than rely on implicit globals").
func newServeCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:       "serve [front|chat]",
		Short:     "Run a Talk2Me front or chat server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"front", "chat"},
		RunE: func(cmd *cobra.Command, args []string) error {
			role := args[0]
			if role != string(config.RoleFront) && role != string(config.RoleChat) {
				return fmt.Errorf("serve: role must be %q or %q", config.RoleFront, config.RoleChat)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Role = role
			if addr == "" {
				addr = net.JoinHostPort("", strconv.Itoa(cfg.Port))
			}

			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if config.LoggingEnabled() {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Info().Interface("config", cfg.Redact()).Msg("starting talk2me")

			return runServer(cfg, addr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "talk2me.toml", "path to TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override listen address (default :<config port>)")
	return cmd
}

func runServer(cfg config.Config, addr string) error {
	st, err := store.New(cfg.SnapshotPath, cfg.ChatServers, cfg.SnapshotWorkers)
	if err != nil {
		return fmt.Errorf("serve: init store: %w", err)
	}

	var fed *federation.Client
	if config.Role(cfg.Role) == config.RoleFront {
		key, err := cryptoenv.ParseKey(cfg.BaseKey)
		if err != nil {
			return fmt.Errorf("serve: parse base key: %w", err)
		}
		fed = federation.NewClient(key)
	}

	srv, err := dispatcher.New(cfg, st, fed)
	if err != nil {
		return fmt.Errorf("serve: init dispatcher: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down")
		srv.Shutdown()
	}()

	return srv.ListenAndServe(addr)
}
