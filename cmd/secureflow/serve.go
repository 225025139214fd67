package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NSvoltage/secureflow/api/rest"
	"github.com/NSvoltage/secureflow/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `serve starts the REST API for submitting, inspecting, cancelling, and
resuming workflow executions. The server drains in-flight executions on
SIGINT or SIGTERM; interrupted executions are persisted as paused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		serverCfg := rest.DefaultConfig()
		serverCfg.Address = cfg.Server.Address
		serverCfg.ReadTimeout = cfg.Server.ReadTimeout
		serverCfg.WriteTimeout = cfg.Server.WriteTimeout
		serverCfg.BodyLimit = cfg.Server.BodyLimit
		serverCfg.DefaultProfile = cfg.Security.Profile

		server := rest.NewServer(eng, serverCfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("starting API server on %s (profile: %s, state: %s)",
			cfg.Server.Address, cfg.Security.Profile, cfg.State.Backend)
		if err := server.StartWithContext(ctx); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
