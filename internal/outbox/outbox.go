// Package outbox models the append-only queue of pending local
// mutations described in spec.md §3.4/§4.4: row shape, the
// pending/syncing/synced/failed state machine, and the exponential
// backoff schedule for retries. Storage-backed operations live in
// localstore (which owns the actual SQL); this package is the pure
// status state machine plus the backoff policy, grounded on the
// teacher's direct dependency github.com/cenkalti/backoff/v4, used here
// exactly as the teacher uses it for its own remote-sync retries.
package outbox

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation is the kind of mutation an outbox row records.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Status is the outbox row's place in the state machine described in
// spec.md §4.4:
//
//	pending --claim--> syncing --ack--> (row deleted)
//	pending --claim--> syncing --fail--> failed
//	failed  --retry--> pending
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced" // terminal: remote was wiser, row dropped without applying
	StatusFailed  Status = "failed"
)

// Row is one outbox entry.
type Row struct {
	Seq             int64
	TableName       string
	RowKey          string // composite keys are joined with "\x1f" (see Key)
	Operation       Operation
	PayloadSnapshot []byte // JSON-encoded adapter.Row at enqueue time
	EnqueuedAt      time.Time
	Status          Status
	Attempts        int
	LastError       string
}

// Key joins composite-key column values into the outbox's single
// RowKey string. The separator is a control character that never
// appears in legitimate key values, so the join is unambiguous and
// reversible if ever needed for debugging.
func Key(values ...string) string {
	out := values[0]
	for _, v := range values[1:] {
		out += "\x1f" + v
	}
	return out
}

// MaxAttempts is the ceiling after which a failed row is left for
// operator inspection instead of retried automatically — spec.md §4.4:
// "the engine MUST NOT silently drop mutations."
const MaxAttempts = 20

// backoffCap is the ceiling on a single retry delay, per spec.md §4.4
// ("exponential backoff... caps at e.g. 5 min").
const backoffCap = 5 * time.Minute

// NewBackoff returns a fresh exponential backoff policy for a single
// outbox row's retry schedule, capped at backoffCap with no overall
// elapsed-time limit (the row keeps retrying, capped per-attempt, until
// MaxAttempts is hit and it is left in the failed state for inspection).
func NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = backoffCap
	return b
}

// NeedsOperatorAttention reports whether a failed row has exhausted its
// automatic retry budget and should stop being retried.
func NeedsOperatorAttention(r Row) bool {
	return r.Status == StatusFailed && r.Attempts >= MaxAttempts
}
