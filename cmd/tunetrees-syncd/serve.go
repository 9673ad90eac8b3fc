package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tunetrees/sync/internal/config"
	"github.com/tunetrees/sync/internal/sync"
	"github.com/tunetrees/sync/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var userID, deviceID, otlpEndpoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine as a long-lived process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			inst, shutdownTelemetry, err := telemetry.Setup(ctx, "tunetrees-syncd", otlpEndpoint)
			if err != nil {
				return fmt.Errorf("serve: telemetry setup: %w", err)
			}
			defer func() { _ = shutdownTelemetry(context.Background()) }()

			engine, err := sync.Open(ctx, cfg, inst, log)
			if err != nil {
				return fmt.Errorf("serve: open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			config.WatchReload(v, func(updated config.Config) {
				log.Info("config reloaded", "logLevel", updated.LogLevel, "realtimeTransport", updated.Realtime.Transport)
			})

			if userID != "" {
				if err := engine.BeginSession(ctx, userID, deviceID); err != nil {
					return fmt.Errorf("serve: begin session: %w", err)
				}
				defer func() { _ = engine.EndSession(context.Background()) }()
			} else {
				log.Warn("serve started with no --user; the engine is idle until a session begins")
			}

			<-ctx.Done()
			log.Info("serve shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "authenticated user id to begin a session for")
	cmd.Flags().StringVar(&deviceID, "device", "", "this device's id")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP metrics endpoint (empty = stdout exporter)")

	return cmd
}
