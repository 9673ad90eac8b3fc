// Package orchestrator owns the sync session lifecycle from spec.md
// §4.10: login/logout hooks, periodic ticks, the concurrency guard, and
// transport-failure backoff. Instrumented with log/slog and OpenTelemetry
// the way the teacher's own cmd/bd daemon instruments its sync loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/presync"
	"github.com/tunetrees/sync/internal/pull"
	"github.com/tunetrees/sync/internal/push"
	"github.com/tunetrees/sync/internal/realtime"
	"github.com/tunetrees/sync/internal/syncerr"
	"github.com/tunetrees/sync/internal/telemetry"
)

// StatusEvent is the aggregate, user-visible signal from spec.md §7's
// propagation rule: applications subscribe to this channel instead of
// inspecting individual row errors.
type StatusEvent struct {
	State string // "offline" | "online" | "syncing" | "paused"
	Err   error  // set when State == "paused" (a fatal-category error)
}

// Orchestrator owns one user session's sync lifecycle.
type Orchestrator struct {
	Store      *localstore.Store
	Push       *push.Pipeline
	Pull       *pull.Pipeline
	Presync    *presync.Builder
	Subscriber *realtime.Subscriber
	Telemetry  *telemetry.Instruments
	Log        *slog.Logger

	TickInterval time.Duration

	userID   string
	deviceID string

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	statusCh  chan StatusEvent
	isInitial bool

	// selectedGenreIDs is the effective genre set U computed by
	// internal/presync (spec.md §4.9 step 2), installed as the
	// selectedGenreIds filter override (step 3) on every pull this
	// session issues. Refreshed each cycle in runCycle since a user's
	// genre selections or playlists can change mid-session.
	selectedGenreIDs []string
}

// New builds an Orchestrator. log defaults to slog.Default() when nil.
func New(store *localstore.Store, pushPipeline *push.Pipeline, pullPipeline *pull.Pipeline, presyncBuilder *presync.Builder, subscriber *realtime.Subscriber, inst *telemetry.Instruments, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		Store:        store,
		Push:         pushPipeline,
		Pull:         pullPipeline,
		Presync:      presyncBuilder,
		Subscriber:   subscriber,
		Telemetry:    inst,
		Log:          log,
		TickInterval: 30 * time.Second,
		statusCh:     make(chan StatusEvent, 16),
	}
}

// Status returns the channel applications subscribe to for the
// aggregate offline/online/syncing/paused signal.
func (o *Orchestrator) Status() <-chan StatusEvent { return o.statusCh }

// BeginSession implements spec.md §6.1's beginSession(userId, deviceId):
// initializes the local store, loads watermarks (implicit — the store
// is already bootstrapped by localstore.Open), runs pre-sync, and
// starts periodic ticks and the realtime subscriber.
func (o *Orchestrator) BeginSession(ctx context.Context, userID, deviceID string) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: session already running")
	}
	o.userID = userID
	o.deviceID = deviceID
	o.running = true
	sessionCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.Log.Info("sync session starting", "userId", userID, "deviceId", deviceID)

	isInitial, err := o.isInitialSync(sessionCtx)
	if err != nil {
		return err
	}
	o.isInitial = isInitial

	if genres, err := o.Presync.Run(sessionCtx, userID, isInitial); err != nil {
		o.Log.Warn("presync failed, continuing with unfiltered pull", "userId", userID, "err", err)
	} else {
		o.mu.Lock()
		o.selectedGenreIDs = genres
		o.mu.Unlock()
	}

	if o.Subscriber != nil {
		if err := o.Subscriber.Start(sessionCtx, userID); err != nil {
			o.Log.Warn("realtime subscribe failed, falling back to periodic ticks only", "userId", userID, "err", err)
		}
	}

	go o.tickLoop(sessionCtx)

	return nil
}

// EndSession implements spec.md §6.1's endSession(): stops the
// subscriber, quiesces in-flight sync, and clears local state.
func (o *Orchestrator) EndSession(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	if o.Subscriber != nil {
		_ = o.Subscriber.Stop()
	}
	if cancel != nil {
		cancel()
	}

	if err := o.Store.Reset(ctx); err != nil {
		return fmt.Errorf("orchestrator: clear local state on logout: %w", err)
	}
	return nil
}

// ForceSync implements spec.md §6.1's forceSync(): nudges an immediate
// cycle, collapsing with any cycle already in flight (spec.md §4.10's
// concurrency guard — overlapping triggers collapse rather than
// queueing a second cycle).
func (o *Orchestrator) ForceSync(ctx context.Context) error {
	return o.runCycle(ctx)
}

// QueueStats implements spec.md §6.1's queueStats().
func (o *Orchestrator) QueueStats(ctx context.Context) ([]localstore.Stats, error) {
	return localstore.QueueStats(ctx, o.Store.DB())
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	interval := o.TickInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.runCycle(ctx); err != nil {
				o.Log.Error("sync cycle failed", "userId", o.userID, "err", err)
			}
		}
	}
}

// NudgeTable is called by the realtime subscriber (wired by the caller
// constructing the Subscriber's notify func) to request an out-of-band
// pull of one table.
func (o *Orchestrator) NudgeTable(ctx context.Context, table string) {
	o.mu.Lock()
	genres := o.selectedGenreIDs
	o.mu.Unlock()

	sctx := pull.Context{UserID: o.userID, SelectedGenreIDs: genres}
	if _, err := o.Pull.RunTables(ctx, sctx, []string{table}); err != nil {
		o.Log.Warn("realtime-triggered pull failed", "table", table, "err", err)
	}
}

// runCycle is the single-flight guarded push-then-pull cycle from
// spec.md §4.10. At most one cycle runs at a time per session; a
// concurrent call observes the lock held and returns immediately
// (its trigger is effectively collapsed into the cycle already running).
func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if !cycleGuard.TryLock() {
		return nil
	}
	defer cycleGuard.Unlock()

	o.emitStatus(StatusEvent{State: "syncing"})

	if o.Telemetry != nil {
		var span trace.Span
		ctx, span = o.Telemetry.Tracer.Start(ctx, "sync.cycle")
		defer span.End()
	}

	// Recompute the effective genre set U fresh every cycle (spec.md
	// §4.9 step 3 installs it "for this sync cycle", not once per
	// session) and install it as the pull filter override below. A
	// presync failure keeps the last known set rather than falling back
	// to an unfiltered pull mid-session.
	if o.Presync != nil {
		if genres, err := o.Presync.Run(ctx, o.userID, o.isInitial); err != nil {
			o.Log.Warn("presync failed, reusing last known genre filter", "userId", o.userID, "err", err)
		} else {
			o.mu.Lock()
			o.selectedGenreIDs = genres
			o.mu.Unlock()
		}
	}

	// Bounded, not infinite: spec.md §4.10 asks for "backoff with jitter
	// up to a cap", not an unbounded retry that would stall the tick
	// loop indefinitely on a sustained outage. A cycle that still fails
	// after this window returns an error; the next periodic tick
	// (or realtime nudge) tries again from a clean start.
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 2 * time.Minute

	err := backoff.Retry(func() error {
		if _, err := o.Push.RunOnce(ctx, o.userID); err != nil {
			if syncerr.Fatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		o.mu.Lock()
		genres := o.selectedGenreIDs
		o.mu.Unlock()

		sctx := pull.Context{UserID: o.userID, IsInitialSync: o.isInitial, SelectedGenreIDs: genres}
		tables := syncableAndReferenceTableNames(o.Store)
		if _, err := o.Pull.RunTables(ctx, sctx, tables); err != nil {
			if syncerr.Fatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, boff)

	if err != nil {
		if syncerr.Fatal(err) {
			o.emitStatus(StatusEvent{State: "paused", Err: err})
			o.pauseOnFatal(err)
			return err
		}
		o.emitStatus(StatusEvent{State: "offline", Err: err})
		return err
	}

	o.emitStatus(StatusEvent{State: "online"})
	return nil
}

// pauseOnFatal implements spec.md §7's schema-mismatch/auth-failure/
// store-corruption handling: the scheduler pauses rather than retrying
// forever against a condition backoff cannot fix.
func (o *Orchestrator) pauseOnFatal(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.running = false

	if errors.Is(err, syncerr.ErrStoreCorrupt) {
		o.Log.Error("local store corrupt, reset required on next BeginSession", "userId", o.userID)
	}
}

func (o *Orchestrator) emitStatus(ev StatusEvent) {
	select {
	case o.statusCh <- ev:
	default:
		// Aggregate status is advisory; a full channel means the
		// application hasn't drained recent events, and the newest
		// state will supersede them anyway on the next emit.
	}
}

func (o *Orchestrator) isInitialSync(ctx context.Context) (bool, error) {
	_, ok, err := localstore.GetWatermark(ctx, o.Store.DB(), "user_profile")
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func syncableAndReferenceTableNames(store *localstore.Store) []string {
	reg := store.Registry()
	var out []string
	for _, m := range reg.SyncableTables() {
		out = append(out, m.Name)
	}
	for _, m := range reg.ReferenceTables() {
		out = append(out, m.Name)
	}
	return out
}

// cycleGuard is the process-wide single-flight guard from spec.md §5:
// "at most one sync cycle runs at a time per user". A bare sync.Mutex's
// TryLock matches the teacher's own single-writer guard idiom
// (internal/eventbus.Bus.mu) rather than reaching for a third-party
// singleflight library the teacher itself does not use for this.
var cycleGuard sync.Mutex
