// Package sync is the small public facade spec.md §6.1 names: the only
// surface the application (UI layer) talks to. Everything else under
// internal/ is a collaborator wired together here.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tunetrees/sync/internal/config"
	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/orchestrator"
	"github.com/tunetrees/sync/internal/presync"
	"github.com/tunetrees/sync/internal/pull"
	"github.com/tunetrees/sync/internal/push"
	"github.com/tunetrees/sync/internal/realtime"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
	"github.com/tunetrees/sync/internal/telemetry"
)

// Engine is the application-facing handle on one sync session.
type Engine struct {
	store *localstore.Store
	orch  *orchestrator.Orchestrator
}

// Open wires the full engine (registry, local store, remote client,
// push/pull pipelines, pre-sync builder, realtime subscriber,
// orchestrator) from cfg and returns an Engine ready for BeginSession.
func Open(ctx context.Context, cfg *config.Config, inst *telemetry.Instruments, log *slog.Logger) (*Engine, error) {
	reg := registry.Default()

	store, err := localstore.Open(ctx, cfg.LocalStorePath, reg)
	if err != nil {
		return nil, fmt.Errorf("sync: open local store: %w", err)
	}

	client := remote.New(cfg.RemoteBaseURL)

	pushPipeline := push.New(store, client, cfg.PushRatePerSecond, cfg.PushRateBurst)
	pushPipeline.BatchSize = cfg.PushBatchSize

	pullPipeline := pull.New(store, client)
	presyncBuilder := presync.New(store, client, pullPipeline)

	orch := orchestrator.New(store, pushPipeline, pullPipeline, presyncBuilder, nil, inst, log)
	orch.TickInterval = cfg.TickInterval

	transport, err := buildTransport(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if transport != nil {
		orch.Subscriber = realtime.New(transport, func(table string) {
			orch.NudgeTable(ctx, table)
		})
	}

	return &Engine{store: store, orch: orch}, nil
}

func buildTransport(cfg *config.Config) (realtime.Transport, error) {
	switch cfg.Realtime.Transport {
	case config.TransportKafka:
		return realtime.NewKafkaTransport(cfg.Realtime.KafkaBrokers, cfg.Realtime.KafkaGroup)
	case config.TransportNATS, "":
		return realtime.NewNATSTransport(cfg.Realtime.NATSURL)
	default:
		return nil, fmt.Errorf("sync: unknown realtime transport %q", cfg.Realtime.Transport)
	}
}

// BeginSession implements spec.md §6.1.
func (e *Engine) BeginSession(ctx context.Context, userID, deviceID string) error {
	return e.orch.BeginSession(ctx, userID, deviceID)
}

// EndSession implements spec.md §6.1.
func (e *Engine) EndSession(ctx context.Context) error {
	return e.orch.EndSession(ctx)
}

// ForceSync implements spec.md §6.1.
func (e *Engine) ForceSync(ctx context.Context) error {
	return e.orch.ForceSync(ctx)
}

// QueueStats implements spec.md §6.1.
func (e *Engine) QueueStats(ctx context.Context) ([]localstore.Stats, error) {
	return e.orch.QueueStats(ctx)
}

// Status exposes the aggregate offline/online/syncing/paused signal.
func (e *Engine) Status() <-chan orchestrator.StatusEvent { return e.orch.Status() }

// Store exposes the local store handle for UI reads/writes, per
// spec.md §6.1: "UI writes pass through the normal tables and are
// picked up by triggers automatically; UI code never touches the
// outbox directly."
func (e *Engine) Store() *localstore.Store { return e.store }

// Close releases the underlying store handle. Callers should call
// EndSession first if a session is active.
func (e *Engine) Close() error {
	return e.store.Close()
}
