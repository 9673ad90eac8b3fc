package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunetrees/sync/internal/outbox"
)

// ClaimBatch selects up to limit pending rows for one table, ordered by
// enqueue sequence (FIFO per spec.md §4.4), and marks them syncing so a
// concurrent push cycle cannot double-claim them.
func ClaimBatch(ctx context.Context, db *sql.DB, table string, limit int) ([]outbox.Row, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("localstore: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, table_name, row_key, operation, payload_snapshot, enqueued_at, status, attempts, last_error
		FROM outbox
		WHERE table_name = ? AND status = 'pending'
		ORDER BY seq ASC
		LIMIT ?`, table, limit)
	if err != nil {
		return nil, fmt.Errorf("localstore: query claim batch: %w", err)
	}

	var claimed []outbox.Row
	for rows.Next() {
		r, err := scanOutboxRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range claimed {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET status = 'syncing' WHERE seq = ?`, claimed[i].Seq); err != nil {
			return nil, fmt.Errorf("localstore: mark syncing: %w", err)
		}
		claimed[i].Status = outbox.StatusSyncing
	}

	return claimed, tx.Commit()
}

// Ack removes a successfully pushed (or remote-was-wiser) outbox row.
func Ack(ctx context.Context, db *sql.DB, seq int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("localstore: ack outbox row %d: %w", seq, err)
	}
	return nil
}

// Fail records a push failure: increments attempts, stores errMsg, and
// moves the row back to pending (for another backoff-scheduled attempt)
// or to failed once outbox.MaxAttempts is reached, per spec.md §4.4.
func Fail(ctx context.Context, db *sql.DB, seq int64, errMsg string) error {
	var attempts int
	if err := db.QueryRowContext(ctx, `SELECT attempts FROM outbox WHERE seq = ?`, seq).Scan(&attempts); err != nil {
		return fmt.Errorf("localstore: read attempts for %d: %w", seq, err)
	}
	attempts++
	status := outbox.StatusPending
	if attempts >= outbox.MaxAttempts {
		status = outbox.StatusFailed
	}
	_, err := db.ExecContext(ctx, `UPDATE outbox SET attempts = ?, status = ?, last_error = ? WHERE seq = ?`,
		attempts, string(status), errMsg, seq)
	if err != nil {
		return fmt.Errorf("localstore: fail outbox row %d: %w", seq, err)
	}
	return nil
}

// RetryFailed resets every failed row for table back to pending, for
// operator-triggered retry of rows that exhausted MaxAttempts.
func RetryFailed(ctx context.Context, db *sql.DB, table string) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'pending', attempts = 0, last_error = NULL WHERE table_name = ? AND status = 'failed'`, table)
	if err != nil {
		return 0, fmt.Errorf("localstore: retry failed rows for %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Stats is the per-table outbox queue snapshot surfaced by the monitor
// TUI and the stats CLI command.
type Stats struct {
	Table    string
	Pending  int64
	Syncing  int64
	Failed   int64
	OldestAt time.Time
}

// QueueStats returns one Stats entry per table with at least one
// outstanding (non-deleted) outbox row.
func QueueStats(ctx context.Context, db *sql.DB) ([]Stats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name,
		       SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'syncing' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		       MIN(enqueued_at)
		FROM outbox
		GROUP BY table_name
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("localstore: queue stats: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var s Stats
		var oldest string
		if err := rows.Scan(&s.Table, &s.Pending, &s.Syncing, &s.Failed, &oldest); err != nil {
			return nil, fmt.Errorf("localstore: scan queue stats: %w", err)
		}
		if t, err := time.Parse(isoUTCLayout, oldest); err == nil {
			s.OldestAt = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const isoUTCLayout = "2006-01-02T15:04:05Z"

func scanOutboxRow(rows *sql.Rows) (outbox.Row, error) {
	var r outbox.Row
	var op, status, enqueuedAt string
	var lastErr sql.NullString
	if err := rows.Scan(&r.Seq, &r.TableName, &r.RowKey, &op, &r.PayloadSnapshot, &enqueuedAt, &status, &r.Attempts, &lastErr); err != nil {
		return outbox.Row{}, fmt.Errorf("localstore: scan outbox row: %w", err)
	}
	r.Operation = outbox.Operation(op)
	r.Status = outbox.Status(status)
	r.LastError = lastErr.String
	if t, err := time.Parse(isoUTCLayout, enqueuedAt); err == nil {
		r.EnqueuedAt = t
	}
	return r, nil
}
