// Package adapter holds the pure, stateless casing and type-coercion
// functions that translate row shapes between the local store's naming
// convention and the remote worker's, per spec.md §4.2. Nothing here
// touches a database handle or the network; every function is a plain
// map[string]any -> map[string]any transform, unit-tested with testify.
package adapter

import (
	"strings"
	"time"

	"github.com/tunetrees/sync/internal/registry"
)

// Row is a loosely-typed row as it crosses the local/remote boundary.
// The engine stores strongly-typed model structs locally; Row is the
// wire/staging shape used by the adapter, outbox payloads, and the
// remote client.
type Row map[string]any

// Override customizes ToLocal/ToRemote for a single table beyond the
// registry's generic casing + boolean coercion. Overrides live beside
// the registry entry (registered in this package, keyed by table name),
// never inside the engine, per spec.md §4.2's explicit design note.
type Override struct {
	ToLocal  func(Row)
	ToRemote func(Row)
}

var overrides = map[string]Override{
	"daily_practice_queue": {
		ToLocal:  func(r Row) { normalizeTimestampField(r, "window_start_utc") },
		ToRemote: func(r Row) { normalizeTimestampField(r, "window_start_utc") },
	},
}

// snakeToCamel converts snake_case to lowerCamelCase for remote-shape
// column names. TuneTrees' remote worker uses camelCase JSON bodies over
// an otherwise snake_case SQL schema; ToRemote/ToLocal convert between
// the two so the registry only ever has to reason in local (snake_case)
// names.
func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isBoolColumn(m registry.TableMeta, col string) bool {
	for _, c := range m.BoolColumns {
		if c == col {
			return true
		}
	}
	return false
}

// ToLocal renames keys from remote (camelCase) to local (snake_case)
// convention, coerces declared boolean columns from 0/1 ints (or JSON
// booleans, already bool in Go) to bool, and normalizes timestamp
// strings to ISO-8601 UTC. The input row is not mutated; a new Row is
// returned.
func ToLocal(remoteRow Row, m registry.TableMeta) Row {
	out := make(Row, len(remoteRow))
	for k, v := range remoteRow {
		local := camelToSnake(k)
		out[local] = v
	}
	for _, col := range m.BoolColumns {
		if v, ok := out[col]; ok {
			out[col] = coerceBool(v)
		}
	}
	for _, ts := range m.TimestampColumns {
		normalizeTimestampField(out, ts)
	}
	if ov, ok := overrides[m.Name]; ok && ov.ToLocal != nil {
		ov.ToLocal(out)
	}
	return out
}

// ToRemote is the inverse of ToLocal: renames snake_case local keys to
// camelCase, coerces bools back to 0/1 integers (the remote worker's
// upsert payload shape), and strips any local-only columns (outbox
// bookkeeping fields never present on the remote side).
func ToRemote(localRow Row, m registry.TableMeta) Row {
	out := make(Row, len(localRow))
	for k, v := range localRow {
		if isLocalOnlyColumn(k) {
			continue
		}
		remote := snakeToCamel(k)
		out[remote] = v
	}
	for _, col := range m.BoolColumns {
		remote := snakeToCamel(col)
		if v, ok := out[remote]; ok {
			out[remote] = coerceIntBool(v)
		}
	}
	if ov, ok := overrides[m.Name]; ok && ov.ToRemote != nil {
		ov.ToRemote(out)
	}
	return out
}

// ConflictKeys returns the column set used as the upsert conflict target
// for m, in remote (camelCase) naming.
func ConflictKeys(m registry.TableMeta) []string {
	keys := make([]string, len(m.PushRule.ConflictTarget))
	for i, k := range m.PushRule.ConflictTarget {
		keys[i] = snakeToCamel(k)
	}
	return keys
}

// isLocalOnlyColumn reports columns that exist on the local row shape
// but must never be sent to the remote worker (outbox/trigger
// bookkeeping, not part of the entity itself).
func isLocalOnlyColumn(col string) bool {
	switch col {
	case "_outbox_seq", "_local_rowid":
		return true
	default:
		return false
	}
}

func coerceBool(v any) any {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return v
	}
}

func coerceIntBool(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

// normalizeTimestampField rewrites r[col], if present and a string, to
// canonical ISO-8601 UTC, accepting both the ISO-T form and the legacy
// space-separated form ("2006-01-02 15:04:05"), per spec.md §9's
// datetime-normalization design note.
func normalizeTimestampField(r Row, col string) {
	v, ok := r[col]
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		return
	}
	normalized, err := NormalizeTimestamp(s)
	if err != nil {
		return // leave unparsable values untouched; no error is reported
	}
	r[col] = normalized
}

const isoUTCLayout = "2006-01-02T15:04:05Z"

var candidateLayouts = []string{
	time.RFC3339,
	isoUTCLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// NormalizeTimestamp parses s under any accepted layout and re-emits the
// canonical ISO-8601 UTC form with no fractional seconds.
func NormalizeTimestamp(s string) (string, error) {
	var lastErr error
	for _, layout := range candidateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC().Format(isoUTCLayout), nil
		}
		lastErr = err
	}
	return "", lastErr
}
