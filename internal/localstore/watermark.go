package localstore

import (
	"context"
	"database/sql"
	"fmt"
)

// GetWatermark returns the last_modified_at high-water mark recorded for
// table's most recent successful pull, and ok=false if the table has
// never been pulled (spec.md §4.6's per-table pull cursor).
func GetWatermark(ctx context.Context, db *sql.DB, table string) (string, bool, error) {
	var ts sql.NullString
	err := db.QueryRowContext(ctx, `SELECT last_modified_at FROM watermark WHERE table_name = ?`, table).Scan(&ts)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("localstore: read watermark %s: %w", table, err)
	case !ts.Valid:
		return "", false, nil
	default:
		return ts.String, true, nil
	}
}

// SetWatermark advances table's pull cursor. Called within the same
// transaction as the page of applied rows so a crash between apply and
// watermark-write cannot silently skip or replay a page.
func SetWatermark(ctx context.Context, tx *sql.Tx, table, lastModifiedAt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO watermark (table_name, last_modified_at) VALUES (?, ?)
		ON CONFLICT (table_name) DO UPDATE SET last_modified_at = excluded.last_modified_at`,
		table, lastModifiedAt)
	if err != nil {
		return fmt.Errorf("localstore: set watermark %s: %w", table, err)
	}
	return nil
}
