// Package realtime subscribes to remote change notifications scoped to
// the authenticated user and nudges the pull pipeline for the affected
// table, per spec.md §4.8. It never applies rows itself.
package realtime

import (
	"context"
	"sync"
	"time"
)

// CoalesceWindow is the burst-coalescing window from spec.md §4.8.
const CoalesceWindow = 250 * time.Millisecond

// Transport is the pluggable realtime backend. NATSTransport (default)
// and KafkaTransport each implement it.
type Transport interface {
	// Subscribe opens a durable, user-scoped subscription and returns a
	// channel of table names that changed. The channel is closed when
	// ctx is canceled. KafkaTransport also closes it when Close is
	// called; NATSTransport's Close unsubscribes but leaves the channel
	// open until ctx is canceled.
	Subscribe(ctx context.Context, userID string) (<-chan string, error)
	Close() error
}

// Subscriber coalesces bursts of notifications for the same table
// within CoalesceWindow and nudges Notify at most once per window.
type Subscriber struct {
	transport Transport
	notify    func(table string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	cancel  context.CancelFunc
	stopped bool
}

// New builds a Subscriber. notify is called (from a timer goroutine,
// never from Subscribe's own goroutine) once per coalesced burst for a
// table — the orchestrator wires this to "nudge the pull pipeline for
// table".
func New(transport Transport, notify func(table string)) *Subscriber {
	return &Subscriber{
		transport: transport,
		notify:    notify,
		pending:   make(map[string]*time.Timer),
	}
}

// Start opens the subscription for userID and begins coalescing
// notifications until ctx is canceled or Stop is called.
func (s *Subscriber) Start(ctx context.Context, userID string) error {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.transport.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.stopped = false
	s.mu.Unlock()

	go func() {
		for table := range changes {
			s.coalesce(table)
		}
	}()
	return nil
}

func (s *Subscriber) coalesce(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, scheduled := s.pending[table]; scheduled {
		return
	}
	s.pending[table] = time.AfterFunc(CoalesceWindow, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.pending, table)
		s.mu.Unlock()
		s.notify(table)
	})
}

// Stop tears down the subscription deterministically — spec.md §4.8's
// "on logout or session change, all subscriptions are torn down
// deterministically before local state is cleared". Any pending
// coalesce timers are canceled so no stale notify fires after Stop
// returns.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = make(map[string]*time.Timer)
	s.mu.Unlock()
	return s.transport.Close()
}
