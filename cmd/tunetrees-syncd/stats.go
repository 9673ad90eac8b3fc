package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/registry"
)

// newStatsCmd implements spec.md §6.1's queueStats() as a one-shot CLI
// report: a snapshot of the outbox backlog of each table that has outbox
// rows, printed
// once and exited, for operators checking on a device without wiring up
// the monitor TUI.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a one-shot snapshot of the outbox queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := localstore.Open(ctx, cfg.LocalStorePath, registry.Default())
			if err != nil {
				return fmt.Errorf("stats: open local store: %w", err)
			}
			defer func() { _ = store.Close() }()

			stats, err := localstore.QueueStats(ctx, store.DB())
			if err != nil {
				return fmt.Errorf("stats: query queue stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-28s %8s %8s %8s %s\n", "TABLE", "PENDING", "SYNCING", "FAILED", "OLDEST")
			for _, s := range stats {
				oldest := "-"
				if !s.OldestAt.IsZero() {
					oldest = s.OldestAt.Format("2006-01-02T15:04:05Z")
				}
				fmt.Fprintf(out, "%-28s %8d %8d %8d %s\n", s.Table, s.Pending, s.Syncing, s.Failed, oldest)
			}

			return nil
		},
	}

	return cmd
}
