// Command tunetrees-remoted is the reference remote worker from
// spec.md §6.2: a minimal HTTP server implementing /sync/push and
// /sync/pull against a real Dolt sql-server, so the client pipelines in
// internal/push and internal/pull have a real collaborator to exercise
// in integration tests rather than a mock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remotestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	addr := envOr("TUNETREES_REMOTED_ADDR", ":8443")
	dsn := envOr("TUNETREES_REMOTED_DSN", "root@tcp(127.0.0.1:3307)/tunetrees")

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := remotestore.Open(ctx, dsn, registry.Default())
	if err != nil {
		return fmt.Errorf("tunetrees-remoted: open remote store: %w", err)
	}
	defer func() { _ = store.Close() }()

	srv := newServer(store, log)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("tunetrees-remoted listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	log.Info("tunetrees-remoted shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
