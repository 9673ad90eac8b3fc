package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetrees/sync/internal/realtime"
)

// fakeTransport is an in-memory Transport stand-in: the test pushes
// table names onto changes itself, rather than a live NATS/Kafka
// connection.
type fakeTransport struct {
	changes chan string
	closed  bool
	mu      sync.Mutex
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{changes: make(chan string, 16)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, userID string) (<-chan string, error) {
	return f.changes, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.changes)
	}
	return nil
}

func (f *fakeTransport) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type notifyRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *notifyRecorder) record(table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, table)
}

func (r *notifyRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestCoalescesBurstIntoSingleNotify(t *testing.T) {
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	sub := realtime.New(transport, rec.record)

	require.NoError(t, sub.Start(context.Background(), "u1"))
	t.Cleanup(func() { _ = sub.Stop() })

	for i := 0; i < 5; i++ {
		transport.changes <- "tune"
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(realtime.CoalesceWindow + 100*time.Millisecond)
	assert.Equal(t, []string{"tune"}, rec.snapshot(), "a burst of five changes to the same table must coalesce into one notify")
}

func TestDistinctTablesNotifyIndependently(t *testing.T) {
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	sub := realtime.New(transport, rec.record)

	require.NoError(t, sub.Start(context.Background(), "u1"))
	t.Cleanup(func() { _ = sub.Stop() })

	transport.changes <- "tune"
	transport.changes <- "playlist"

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"tune", "playlist"}, rec.snapshot())
}

func TestStopClosesTransportAndSuppressesPendingNotify(t *testing.T) {
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	sub := realtime.New(transport, rec.record)

	require.NoError(t, sub.Start(context.Background(), "u1"))
	transport.changes <- "tune"

	// Give the reader goroutine time to drain the buffered send and
	// schedule (but not yet fire) its coalesce timer before tearing down.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, sub.Stop())
	assert.True(t, transport.wasClosed())

	// Stop cancels pending coalesce timers, so no late notify should
	// arrive even after the coalesce window would otherwise have fired.
	time.Sleep(realtime.CoalesceWindow + 100*time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
