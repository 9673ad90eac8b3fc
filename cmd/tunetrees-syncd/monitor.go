package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/monitor"
	"github.com/tunetrees/sync/internal/registry"
)

// newMonitorCmd launches the live outbox/status dashboard against the
// local store's own database file. It opens a second, read-mostly
// handle onto the same SQLite file a `serve` process may already have
// open; it never attaches to a running daemon's in-process state, so
// the aggregate status line stays "idle" unless invoked from inside a
// long-lived process that wires in Engine.Status() directly.
func newMonitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live TUI dashboard of the outbox queue and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := localstore.Open(ctx, cfg.LocalStorePath, registry.Default())
			if err != nil {
				return fmt.Errorf("monitor: open local store: %w", err)
			}
			defer func() { _ = store.Close() }()

			model := monitor.New(store, nil, interval)
			p := tea.NewProgram(model, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")

	return cmd
}
