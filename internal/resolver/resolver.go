// Package resolver implements the deterministic last-write-wins
// conflict resolution rule from spec.md §4.7. It is a pure function
// package, grounded on the teacher's config.ConflictStrategy enum
// (internal/config/sync.go): this package keeps the same four named
// strategies, but the pull pipeline and the reference server's push
// handler (internal/remotestore) always invoke it with StrategyNewest
// (LWW), per spec.md §4.7's "device_id is never used for resolution"
// rule. The other strategies are used only by tests that want to pin a
// deterministic non-LWW outcome, matching how the teacher exposes
// strategies its own hot path doesn't always take.
package resolver

// Outcome is the result of comparing two versions of the same row.
type Outcome int

const (
	// KeepLocal: the local version is at least as new; no write needed.
	KeepLocal Outcome = iota
	// TakeRemote: the remote version is newer; apply it locally.
	TakeRemote
	// Noop: the two versions are identical under the comparison key.
	Noop
)

// Strategy selects which comparison rule Resolve applies.
type Strategy string

const (
	// StrategyNewest is last-write-wins on (sync_version, last_modified_at).
	// This is the only strategy the pull pipeline and the reference
	// server's push handler use.
	StrategyNewest Strategy = "newest"
	// StrategyOurs always keeps the local version.
	StrategyOurs Strategy = "ours"
	// StrategyTheirs always takes the remote version.
	StrategyTheirs Strategy = "theirs"
	// StrategyManual defers the decision to an operator; Resolve returns
	// Noop and the caller is expected to surface the conflict instead of
	// applying either side automatically.
	StrategyManual Strategy = "manual"
)

// Version is the comparison key for one side of a conflict: a row's
// sync_version and last_modified_at, expressed as a Unix nanosecond
// timestamp so the comparison has no timezone ambiguity.
type Version struct {
	SyncVersion    int64
	LastModifiedAt int64 // UnixNano, UTC
}

// Compare returns -1, 0, or 1 as a is older, equal, or newer than b,
// comparing (SyncVersion, LastModifiedAt) lexicographically with the
// timestamp as tiebreaker — spec.md §4.7 and §4.5 step 4.
func Compare(a, b Version) int {
	switch {
	case a.SyncVersion < b.SyncVersion:
		return -1
	case a.SyncVersion > b.SyncVersion:
		return 1
	}
	switch {
	case a.LastModifiedAt < b.LastModifiedAt:
		return -1
	case a.LastModifiedAt > b.LastModifiedAt:
		return 1
	default:
		return 0
	}
}

// Resolve decides what to do with a local and a remote version of the
// same row under the given strategy. Testable property: the result does
// not depend on argument order beyond the semantics of "local" vs
// "remote" — swapping local and remote always yields the complementary
// outcome for StrategyNewest (spec.md §8 property 3).
func Resolve(strategy Strategy, local, remote Version) Outcome {
	switch strategy {
	case StrategyOurs:
		return KeepLocal
	case StrategyTheirs:
		return TakeRemote
	case StrategyManual:
		return Noop
	default: // StrategyNewest, and any unrecognized value defaults to LWW
		switch Compare(local, remote) {
		case 0:
			return Noop
		case 1:
			return KeepLocal
		default:
			return TakeRemote
		}
	}
}
