package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/registry"
)

// ApplyRemoteRow upserts row (already adapter.ToLocal-converted) into m's
// table. Callers MUST run this inside Store.WithSyncWriter so the
// insert/update triggers installed in triggers.go see the sync-writer
// flag set and skip re-enqueuing the row into the outbox (spec.md §4.6
// step 2). The upsert's conflict target is always the primary key: pull
// rows are keyed by remote identity, never by a secondary unique key.
func ApplyRemoteRow(ctx context.Context, tx *sql.Tx, m registry.TableMeta, row adapter.Row) error {
	cols := m.Columns
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = row[c]
		if !isKeyColumn(m, c) {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (%s) DO UPDATE SET %s`,
		m.Name,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(m.PrimaryKey, ", "),
		strings.Join(updates, ", "),
	)

	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("localstore: apply remote row into %s: %w", m.Name, err)
	}
	return nil
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting ReadLocalRow
// run either standalone (push pipeline) or inside the pull pipeline's
// sync-writer transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReadLocalRow reads one row by primary key into an adapter.Row keyed by
// local (snake_case) column names, ready for adapter.ToRemote. Used by
// the push pipeline when an outbox payload snapshot needs to be
// re-verified against current state (spec.md §4.4's re-check-on-claim),
// and by the pull pipeline to read the current row before deciding
// keepLocal vs takeRemote.
func ReadLocalRow(ctx context.Context, db Queryer, m registry.TableMeta, keyValues []string) (adapter.Row, bool, error) {
	if len(keyValues) != len(m.PrimaryKey) {
		return nil, false, fmt.Errorf("localstore: %s expects %d key values, got %d", m.Name, len(m.PrimaryKey), len(keyValues))
	}
	pred := make([]string, len(m.PrimaryKey))
	args := make([]any, len(m.PrimaryKey))
	for i, c := range m.PrimaryKey {
		pred[i] = c + " = ?"
		args[i] = keyValues[i]
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, strings.Join(m.Columns, ", "), m.Name, strings.Join(pred, " AND "))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("localstore: read %s: %w", m.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	scanDest := make([]any, len(m.Columns))
	scanVals := make([]any, len(m.Columns))
	for i := range scanDest {
		scanDest[i] = &scanVals[i]
	}
	if err := rows.Scan(scanDest...); err != nil {
		return nil, false, fmt.Errorf("localstore: scan %s: %w", m.Name, err)
	}

	out := make(adapter.Row, len(m.Columns))
	for i, c := range m.Columns {
		out[c] = scanVals[i]
	}
	return out, true, nil
}

func isKeyColumn(m registry.TableMeta, col string) bool {
	for _, k := range m.PrimaryKey {
		if k == col {
			return true
		}
	}
	return false
}
