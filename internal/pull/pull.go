// Package pull brings local state forward from each table's watermark:
// FK-safe ordering, deferral-to-fixpoint for rows whose parent arrives
// later in the same batch, and last-write-wins application, per
// spec.md §4.6.
package pull

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
	"github.com/tunetrees/sync/internal/resolver"
	"github.com/tunetrees/sync/internal/syncerr"
)

// PageSize is the number of rows requested per table per pull page.
const PageSize = 500

// Context carries the per-cycle sync-request parameters the orchestrator
// and pre-sync filter builder assemble: the authenticated user, and the
// effective genre set U (nil when no filtering has been installed).
type Context struct {
	UserID           string
	SelectedGenreIDs []string
	IsInitialSync    bool
}

// Pipeline pulls one or more tables forward from their watermarks.
type Pipeline struct {
	Store  *localstore.Store
	Client *remote.Client
}

// New builds a Pipeline.
func New(store *localstore.Store, client *remote.Client) *Pipeline {
	return &Pipeline{Store: store, Client: client}
}

// Summary tallies one RunTables call for logging/metrics.
type Summary struct {
	Applied  int
	Deferred int // rows still deferred after fixpoint (not an error; re-fetched next cycle)
}

// RunTables pulls exactly the named tables, in the FK-safe order the
// registry computes restricted to that set, applying all rows for the
// whole set within one transaction so deferred-FK rows can resolve
// against parents pulled earlier in the same call (spec.md §4.6's
// "repeat until fixpoint... within the batch").
func (p *Pipeline) RunTables(ctx context.Context, sctx Context, tables []string) (Summary, error) {
	reg := p.Store.Registry()
	order := fkOrderSubset(reg, tables)

	type pending struct {
		meta registry.TableMeta
		rows []adapter.Row
	}
	var batches []pending

	for _, name := range order {
		m := reg.MustLookup(name)
		rows, err := p.fetchAll(ctx, sctx, m)
		if err != nil {
			return Summary{}, err
		}
		batches = append(batches, pending{meta: m, rows: rows})
	}

	var summary Summary
	// appliedMax tracks, per table, the max last_modified_at among rows
	// this call actually applied — never among rows merely fetched, and
	// never among rows left deferred by the fixpoint loop below. The
	// watermark is only advanced from this set, after the apply
	// transaction commits, and not at all for a table that still has
	// deferred rows when the batch ends, so those rows stay behind the
	// watermark and get re-fetched next cycle (spec.md §4.6's
	// FK-deferral protocol).
	appliedMax := make(map[string]string)
	blocked := make(map[string]bool)

	err := p.Store.WithSyncWriter(ctx, func(tx *sql.Tx) error {
		deferred := make(map[string][]adapter.Row)
		for _, b := range batches {
			deferred[b.meta.Name] = b.rows
		}

		for {
			progressed := false
			remaining := 0
			for _, b := range batches {
				rows := deferred[b.meta.Name]
				if len(rows) == 0 {
					continue
				}
				var stillDeferred []adapter.Row
				for _, row := range rows {
					applied, err := p.applyRow(ctx, tx, b.meta, row)
					if err != nil {
						if isFKViolation(err) {
							stillDeferred = append(stillDeferred, row)
							continue
						}
						return err
					}
					if applied {
						summary.Applied++
						progressed = true
						if lm, ok := row["lastModifiedAt"].(string); ok && lm > appliedMax[b.meta.Name] {
							appliedMax[b.meta.Name] = lm
						}
					}
				}
				deferred[b.meta.Name] = stillDeferred
				remaining += len(stillDeferred)
			}
			if remaining == 0 {
				break
			}
			if !progressed {
				// Fixpoint reached with unresolved rows: stop retrying and
				// commit what applied. No error is returned and nothing is
				// logged; the count is reported only in Summary.Deferred.
				// Their tables keep their watermarks, so the next pull
				// cycle fetches these rows again.
				summary.Deferred = remaining
				for name, rows := range deferred {
					if len(rows) > 0 {
						blocked[name] = true
					}
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	for _, b := range batches {
		maxLastModifiedAt, ok := appliedMax[b.meta.Name]
		if !ok || blocked[b.meta.Name] {
			continue
		}
		if err := p.advanceWatermark(ctx, b.meta.Name, maxLastModifiedAt); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// applyRow decides keepLocal/takeRemote for row against the current
// local row (if any) and upserts when remote wins. Returns applied=false
// for a no-op or a keepLocal decision.
func (p *Pipeline) applyRow(ctx context.Context, tx *sql.Tx, m registry.TableMeta, remoteRow adapter.Row) (bool, error) {
	localRow := adapter.ToLocal(remoteRow, m)
	keyValues := make([]string, len(m.PrimaryKey))
	for i, k := range m.PrimaryKey {
		keyValues[i] = fmt.Sprintf("%v", localRow[k])
	}

	existing, found, err := localstore.ReadLocalRow(ctx, tx, m, keyValues)
	if err != nil {
		return false, err
	}

	if found {
		outcome := resolveVersions(m, existing, localRow)
		if outcome == resolver.KeepLocal || outcome == resolver.Noop {
			return false, nil
		}
	}

	if err := localstore.ApplyRemoteRow(ctx, tx, m, localRow); err != nil {
		return false, err
	}
	return true, nil
}

func resolveVersions(m registry.TableMeta, local, remote adapter.Row) resolver.Outcome {
	lv := versionOf(local)
	rv := versionOf(remote)
	return resolver.Resolve(resolver.StrategyNewest, lv, rv)
}

func versionOf(row adapter.Row) resolver.Version {
	var v resolver.Version
	if sv, ok := row["sync_version"]; ok {
		v.SyncVersion = toInt64(sv)
	}
	if lm, ok := row["last_modified_at"]; ok {
		if s, ok := lm.(string); ok {
			if t, err := adapter.NormalizeTimestamp(s); err == nil {
				if parsed, err := parseISOUTC(t); err == nil {
					v.LastModifiedAt = parsed.UnixNano()
				}
			}
		}
	}
	return v
}

func (p *Pipeline) fetchAll(ctx context.Context, sctx Context, m registry.TableMeta) ([]adapter.Row, error) {
	var all []adapter.Row

	since, ok, err := localstore.GetWatermark(ctx, p.Store.DB(), m.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		since = ""
	}

	offset := 0
	for {
		req := remote.PullRequest{
			UserID: sctx.UserID,
			Tables: []remote.PullTableRequest{buildTableRequest(m, since, offset, sctx)},
		}
		resp, err := p.Client.Pull(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: pull %s: %v", syncerr.ErrTransient, m.Name, err)
		}
		if len(resp.Tables) == 0 {
			break
		}
		tr := resp.Tables[0]
		all = append(all, tr.Rows...)
		if tr.NextCursor == nil {
			break
		}
		offset = tr.NextCursor.Offset
	}
	return all, nil
}

func (p *Pipeline) advanceWatermark(ctx context.Context, table, maxLastModifiedAt string) error {
	if maxLastModifiedAt == "" {
		return nil
	}
	tx, err := p.Store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := localstore.SetWatermark(ctx, tx, table, maxLastModifiedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func buildTableRequest(m registry.TableMeta, since string, offset int, sctx Context) remote.PullTableRequest {
	params := map[string]any{}
	if len(sctx.SelectedGenreIDs) > 0 {
		params["selectedGenreIds"] = sctx.SelectedGenreIDs
	}
	params["userId"] = sctx.UserID

	var sinceVal string
	if m.PullRule.Kind != registry.RuleAll {
		sinceVal = since
	}

	return remote.PullTableRequest{
		Name:   m.RemoteName,
		Since:  sinceVal,
		Limit:  PageSize,
		Offset: offset,
		Rule:   ruleName(m.PullRule),
		Params: params,
	}
}

func ruleName(r registry.PullRule) string {
	switch r.Kind {
	case registry.RuleEqUserID:
		return "eqUserId"
	case registry.RuleOrNullEqUserID:
		return "orNullEqUserId"
	case registry.RuleInCollection:
		return "inCollection"
	case registry.RuleCompound:
		return "compound"
	case registry.RuleRPC:
		return r.RPCName
	case registry.RuleAll:
		return "all"
	default:
		return "unknown"
	}
}

// fkOrderSubset restricts the registry's global FK order to the
// requested table set, preserving relative order.
func fkOrderSubset(reg *registry.Registry, tables []string) []string {
	want := make(map[string]bool, len(tables))
	for _, t := range tables {
		want[t] = true
	}
	var out []string
	for _, name := range reg.FKOrder() {
		if want[name] {
			out = append(out, name)
		}
	}
	return out
}

// isFKViolation recognizes modernc.org/sqlite's FK constraint error text.
// SQLite reports this as a plain SQLITE_CONSTRAINT error with no
// distinct Go error type, so the deferral protocol matches on the
// driver's own message rather than a typed error.
func isFKViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func parseISOUTC(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}
