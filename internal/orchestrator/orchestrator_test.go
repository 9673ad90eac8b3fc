package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/outbox"
	"github.com/tunetrees/sync/internal/presync"
	"github.com/tunetrees/sync/internal/pull"
	"github.com/tunetrees/sync/internal/push"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	ctx := context.Background()
	store, err := localstore.Open(ctx, ":memory:", registry.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestForceSyncIsNoopWhenSessionNotRunning(t *testing.T) {
	store := openTestStore(t)
	o := New(store, nil, nil, nil, nil, nil, nil)
	// o.running defaults to false; ForceSync must return before ever
	// touching the (nil) push/pull pipelines.
	assert.NoError(t, o.ForceSync(context.Background()))
}

func TestEmitStatusNeverBlocksOnFullChannel(t *testing.T) {
	store := openTestStore(t)
	o := New(store, nil, nil, nil, nil, nil, nil)

	// statusCh has capacity 16; fill it past capacity and confirm
	// emitStatus drops the newest event rather than blocking the caller.
	for i := 0; i < 32; i++ {
		done := make(chan struct{})
		go func() {
			o.emitStatus(StatusEvent{State: "syncing"})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emitStatus blocked on a full channel")
		}
	}
}

func TestIsInitialSyncTrueBeforeAnyWatermark(t *testing.T) {
	store := openTestStore(t)
	o := New(store, nil, nil, nil, nil, nil, nil)

	initial, err := o.isInitialSync(context.Background())
	require.NoError(t, err)
	assert.True(t, initial)
}

func TestIsInitialSyncFalseOnceUserProfileWatermarkIsSet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	o := New(store, nil, nil, nil, nil, nil, nil)

	tx, err := store.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, localstore.SetWatermark(ctx, tx, "user_profile", "2026-07-29T10:00:00Z"))
	require.NoError(t, tx.Commit())

	initial, err := o.isInitialSync(ctx)
	require.NoError(t, err)
	assert.False(t, initial)
}

// slowThenFastRemote serves /sync/pull instantly (empty tables) and
// /sync/push once slowly, blocking on release so a test can observe a
// second runCycle call collapse while the first is still in flight.
func slowThenFastRemote(t *testing.T, release <-chan struct{}) (*httptest.Server, *int32) {
	t.Helper()
	var pushCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/push":
			atomic.AddInt32(&pushCalls, 1)
			<-release
			var req remote.PushRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			var results []remote.PushResult
			for _, b := range req.Batches {
				for _, row := range b.Upserts {
					key, _ := row["id"].(string)
					results = append(results, remote.PushResult{Table: b.Table, RowKey: key, Outcome: remote.OutcomeApplied})
				}
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(remote.PushResponse{Results: results}))
		case "/sync/pull":
			var req remote.PullRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := remote.PullResponse{}
			for _, tq := range req.Tables {
				resp.Tables = append(resp.Tables, remote.PullTableResult{Name: tq.Name})
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return srv, &pushCalls
}

func TestRunCycleCollapsesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.DB().ExecContext(ctx,
		`INSERT INTO user_profile (id, name, last_modified_at) VALUES (?, ?, ?)`,
		"u1", "Alice", "2026-07-29T10:00:00Z",
	)
	require.NoError(t, err)

	release := make(chan struct{})
	srv, pushCalls := slowThenFastRemote(t, release)
	defer srv.Close()

	client := remote.New(srv.URL)
	o := New(store, push.New(store, client, 1000, 100), pull.New(store, client), nil, nil, nil, nil)
	o.running = true
	o.userID = "u1"

	firstDone := make(chan error, 1)
	go func() { firstDone <- o.runCycle(ctx) }()

	// Wait until the first cycle is inside the blocked push request
	// before firing the collapsing second call.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(pushCalls) == 1
	}, 2*time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- o.runCycle(ctx) }()

	select {
	case err := <-second:
		assert.NoError(t, err, "a cycle already in flight collapses the second trigger rather than erroring")
	case <-time.After(2 * time.Second):
		t.Fatal("second runCycle did not collapse promptly while the first was still in flight")
	}

	close(release)

	select {
	case err := <-firstDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first runCycle never completed after release")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(pushCalls), "the collapsed second trigger must not issue its own push request")
}

// TestRunCycleInstallsEffectiveGenreFilterOnPull guards against the
// effective genre set U being computed by presync and then discarded:
// the tune table's pull request must carry the selectedGenreIds filter
// presync.Run just computed from the seeded genre selection.
func TestRunCycleInstallsEffectiveGenreFilterOnPull(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.DB().ExecContext(ctx,
		`INSERT INTO user_profile (id, name, last_modified_at) VALUES (?, ?, ?)`,
		"u1", "Alice", "2026-07-29T10:00:00Z",
	)
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx, `INSERT INTO genre (id, name) VALUES (?, ?)`, "irish-trad", "Irish Traditional")
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`,
		"u1", "irish-trad", "2026-07-29T10:00:00Z",
	)
	require.NoError(t, err)
	for _, row := range mustClaim(t, ctx, store, "user_genre_selection") {
		require.NoError(t, localstore.Ack(ctx, store.DB(), row.Seq))
	}

	var mu sync.Mutex
	var tuneParams map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/sync/push":
			require.NoError(t, json.NewEncoder(w).Encode(remote.PushResponse{}))
		case "/sync/pull":
			var req remote.PullRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := remote.PullResponse{}
			for _, tq := range req.Tables {
				if tq.Name == "tune" {
					mu.Lock()
					tuneParams = tq.Params
					mu.Unlock()
				}
				resp.Tables = append(resp.Tables, remote.PullTableResult{Name: tq.Name})
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := remote.New(srv.URL)
	pullPipeline := pull.New(store, client)
	pushPipeline := push.New(store, client, 1000, 100)
	presyncBuilder := presync.New(store, client, pullPipeline)

	o := New(store, pushPipeline, pullPipeline, presyncBuilder, nil, nil, nil)
	o.running = true
	o.userID = "u1"

	require.NoError(t, o.runCycle(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, tuneParams, "the tune table must be requested at least once")
	ids, ok := tuneParams["selectedGenreIds"].([]any)
	require.True(t, ok, "a non-empty effective genre set must be threaded onto the tune table's pull request params")
	assert.Contains(t, ids, "irish-trad")
}

func mustClaim(t *testing.T, ctx context.Context, store *localstore.Store, table string) []outbox.Row {
	t.Helper()
	claimed, err := localstore.ClaimBatch(ctx, store.DB(), table, 10)
	require.NoError(t, err)
	return claimed
}
