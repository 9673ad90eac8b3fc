// Package push drains the local outbox to the remote worker: batches by
// table in seq order, transforms rows via adapter.ToRemote, and
// interprets the remote's per-row LWW outcomes, per spec.md §4.5.
package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/outbox"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

// DefaultBatchSize is the number of outbox rows claimed per table per
// push cycle, chosen to keep a single push request small enough for a
// mobile/battery client's round trip.
const DefaultBatchSize = 200

// Pipeline drains one user's outbox against one remote client.
type Pipeline struct {
	Store     *localstore.Store
	Client    *remote.Client
	Limiter   *rate.Limiter
	BatchSize int
}

// New builds a Pipeline. requestsPerSecond/burst configure the
// golang.org/x/time/rate limiter that caps outbound push requests —
// grounded on desertthunder-ytx, which rate-limits its own outbound API
// calls the same way, protecting the remote worker from a client that
// wakes up after a long offline period with a very large outbox.
func New(store *localstore.Store, client *remote.Client, requestsPerSecond float64, burst int) *Pipeline {
	return &Pipeline{
		Store:     store,
		Client:    client,
		Limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		BatchSize: DefaultBatchSize,
	}
}

// Summary tallies one RunOnce call's outcome for logging/metrics.
type Summary struct {
	Pushed   int
	Rejected int
	Failed   int
}

// RunOnce drains at most BatchSize rows per syncable table and pushes
// them to the remote worker, one HTTP request per table per call.
func (p *Pipeline) RunOnce(ctx context.Context, userID string) (Summary, error) {
	var total Summary
	reg := p.Store.Registry()
	db := p.Store.DB()

	for _, m := range reg.SyncableTables() {
		claimed, err := localstore.ClaimBatch(ctx, db, m.Name, p.batchSize())
		if err != nil {
			return total, fmt.Errorf("push: claim %s: %w", m.Name, err)
		}
		if len(claimed) == 0 {
			continue
		}

		s, err := p.pushBatch(ctx, userID, m, claimed, db)
		total.Pushed += s.Pushed
		total.Rejected += s.Rejected
		total.Failed += s.Failed
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return p.BatchSize
}

func (p *Pipeline) pushBatch(ctx context.Context, userID string, m registry.TableMeta, claimed []outbox.Row, db *sql.DB) (Summary, error) {
	var summary Summary

	if err := p.Limiter.Wait(ctx); err != nil {
		return summary, fmt.Errorf("push: rate limiter: %w", err)
	}

	bySeqKey := make(map[string]int64, len(claimed)) // rowKey -> seq, for matching results back
	var upserts []adapter.Row
	var deletes []string

	for _, row := range claimed {
		bySeqKey[row.RowKey] = row.Seq
		if row.Operation == outbox.OpDelete && !rowCarriesTombstone(m) {
			deletes = append(deletes, row.RowKey)
			continue
		}
		var localRow adapter.Row
		if err := json.Unmarshal(row.PayloadSnapshot, &localRow); err != nil {
			return summary, fmt.Errorf("push: decode payload for %s/%s: %w", m.Name, row.RowKey, err)
		}
		upserts = append(upserts, adapter.ToRemote(localRow, m))
	}

	req := remote.PushRequest{
		UserID: userID,
		Batches: []remote.PushBatch{{
			Table:          m.RemoteName,
			ConflictTarget: adapter.ConflictKeys(m),
			Upserts:        upserts,
			Deletes:        deletes,
		}},
	}

	resp, err := p.Client.Push(ctx, req)
	if err != nil {
		// Transport failure: every claimed row reverts to pending with a
		// bumped attempt count, per spec.md §4.5 step 5 / §7.
		for _, row := range claimed {
			_ = localstore.Fail(ctx, db, row.Seq, err.Error())
		}
		summary.Failed = len(claimed)
		return summary, nil
	}

	resultsByKey := make(map[string]remote.PushResult, len(resp.Results))
	for _, r := range resp.Results {
		resultsByKey[r.RowKey] = r
	}

	for _, row := range claimed {
		result, ok := resultsByKey[row.RowKey]
		if !ok {
			// Remote didn't report on this row; treat as transient so it
			// is retried rather than silently dropped (spec.md §4.4).
			_ = localstore.Fail(ctx, db, row.Seq, "remote: no result reported for row")
			summary.Failed++
			continue
		}
		switch result.Outcome {
		case remote.OutcomeApplied:
			if err := localstore.Ack(ctx, db, row.Seq); err != nil {
				return summary, err
			}
			summary.Pushed++
		case remote.OutcomeRejectedStale:
			// Remote was wiser: drop the entry without applying it
			// locally — the pull pipeline will bring the newer row down
			// on its next cycle.
			if err := localstore.Ack(ctx, db, row.Seq); err != nil {
				return summary, err
			}
			summary.Rejected++
		default:
			if err := localstore.Fail(ctx, db, row.Seq, result.Error); err != nil {
				return summary, err
			}
			summary.Failed++
		}
	}

	return summary, nil
}

// rowCarriesTombstone reports whether m models deletes as soft-delete
// updates rather than physical row removal — true for every table in
// this registry (spec.md §3.5 invariant 3), kept as a named check
// rather than a literal `true` so a future hard-delete table (spec.md
// §4.3's "rare" case) only needs a PushRule flag, not a push.go edit.
func rowCarriesTombstone(m registry.TableMeta) bool {
	return m.PushRule.SoftDelete
}
