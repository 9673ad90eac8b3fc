// Package syncerr defines the sync engine's error taxonomy (spec.md §7)
// as wrappable sentinel errors, following the teacher's idiom throughout
// internal/storage/sqlite: sentinel errors via errors.New, wrapped at
// call sites with fmt.Errorf("...: %w", err) and inspected with
// errors.Is/errors.As, never a bespoke error-code enum.
package syncerr

import "errors"

var (
	// ErrTransient marks a push/pull failure caused by network or
	// server unavailability. The caller's retry/backoff path applies.
	ErrTransient = errors.New("syncerr: transient transport failure")

	// ErrStaleWrite marks a push rejection because the remote already
	// holds a row with a higher (sync_version, last_modified_at).
	ErrStaleWrite = errors.New("syncerr: remote holds a newer version")

	// ErrSchemaMismatch marks a fatal, unrecoverable shape mismatch
	// between the local and remote schema (e.g. an unknown column).
	ErrSchemaMismatch = errors.New("syncerr: schema mismatch")

	// ErrFKViolation marks a pull row that could not be applied because
	// its parent has not arrived yet in the current batch.
	ErrFKViolation = errors.New("syncerr: foreign key violation")

	// ErrAuthFailure marks an authentication failure from the remote
	// worker or identity provider.
	ErrAuthFailure = errors.New("syncerr: authentication failure")

	// ErrStoreCorrupt marks local store corruption requiring a
	// schema-version-driven reset.
	ErrStoreCorrupt = errors.New("syncerr: local store corrupt")

	// ErrDeferredFixpoint marks a pull batch whose deferred-row set
	// stopped shrinking before every row applied (spec.md §4.6).
	ErrDeferredFixpoint = errors.New("syncerr: deferred rows did not reach a fixpoint")
)

// Fatal reports whether err belongs to the fatal category that pauses
// the orchestrator rather than retrying (spec.md §7): schema mismatch,
// auth failure, or store corruption.
func Fatal(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrAuthFailure) ||
		errors.Is(err, ErrStoreCorrupt)
}
