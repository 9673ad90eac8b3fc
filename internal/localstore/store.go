// Package localstore is the embedded relational store: schema
// bootstrap, trigger installation, and the generic row I/O the push and
// pull pipelines use. Grounded on the teacher's internal/storage/sqlite
// package (same database/sql + parameterized-query idiom) but with
// modernc.org/sqlite as the driver instead of the teacher's own
// mattn/go-sqlite3, because a browser-adjacent offline-first client
// should not require cgo to embed its store — the same tradeoff sibling
// example repo marcus-td makes for its own embedded todo store.
package localstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/syncerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is bumped whenever the embedded schema changes in a way
// that is not a no-op migration. A mismatch against the local
// schema_version row makes Open fail with syncerr.ErrStoreCorrupt; Open
// does not call Store.Reset, and no caller in this module does so on a
// mismatch.
const SchemaVersion = 1

// Store wraps the local SQLite database handle.
type Store struct {
	db  *sql.DB
	reg *registry.Registry
}

// Open opens (creating if necessary) the SQLite database at path and
// runs the embedded migrations.
func Open(ctx context.Context, path string, reg *registry.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	// The local store is single-writer by design (spec.md §5); one
	// connection keeps SQLite's own locking from fighting the engine's
	// cooperative single-writer guarantee.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, reg: reg}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("localstore: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range names {
		b, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("localstore: read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("localstore: apply migration %s: %w", name, err)
		}
	}

	if err := installTriggers(ctx, tx, s.reg); err != nil {
		return err
	}

	if err := reconcileSchemaVersion(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

func reconcileSchemaVersion(ctx context.Context, tx *sql.Tx) error {
	var stored int
	err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion)
		return err
	case err != nil:
		return fmt.Errorf("%w: reading schema_version: %v", syncerr.ErrStoreCorrupt, err)
	case stored != SchemaVersion:
		// A mismatch fails Open with ErrStoreCorrupt; no reset is run
		// here, and the store is left as it was.
		return fmt.Errorf("%w: schema_version %d, want %d", syncerr.ErrStoreCorrupt, stored, SchemaVersion)
	default:
		return nil
	}
}

// DB exposes the underlying handle for packages (outbox, watermark, the
// pull/push pipelines) that need to run their own statements within a
// shared transaction.
func (s *Store) DB() *sql.DB { return s.db }

// Registry returns the registry this store was opened with.
func (s *Store) Registry() *registry.Registry { return s.reg }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Reset drops every table and re-bootstraps from the embedded schema,
// per spec.md §6.3 ("a mismatch triggers a local reset"). The outbox is
// preserved when readable by copying its rows out before the drop and
// restoring them after, matching the "retaining pending outbox entries
// if possible" language in spec.md §6.3.
func (s *Store) Reset(ctx context.Context) error {
	var preserved []outboxSnapshot
	if rows, err := s.db.QueryContext(ctx, `SELECT table_name, row_key, operation, payload_snapshot, enqueued_at, status, attempts, last_error FROM outbox`); err == nil {
		for rows.Next() {
			var o outboxSnapshot
			if err := rows.Scan(&o.table, &o.key, &o.op, &o.payload, &o.enqueuedAt, &o.status, &o.attempts, &o.lastError); err == nil {
				preserved = append(preserved, o)
			}
		}
		_ = rows.Close()
	}

	tables, err := tableNames(ctx, s.db)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, t)); err != nil {
			return fmt.Errorf("localstore: reset drop %s: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if err := s.bootstrap(ctx); err != nil {
		return err
	}

	for _, o := range preserved {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO outbox (table_name, row_key, operation, payload_snapshot, enqueued_at, status, attempts, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.table, o.key, o.op, o.payload, o.enqueuedAt, o.status, o.attempts, o.lastError)
		if err != nil {
			return fmt.Errorf("localstore: restore outbox row: %w", err)
		}
	}
	return nil
}

type outboxSnapshot struct {
	table      string
	key        string
	op         string
	payload    []byte
	enqueuedAt string
	status     string
	attempts   int
	lastError  sql.NullString
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// WithSyncWriter runs fn inside a transaction with the sync-writer flag
// set, so triggers suppress outbox inserts for the duration (spec.md
// §4.3, §4.6 step 2, §9). The flag is always cleared afterward, even if
// fn returns an error, via defer.
func (s *Store) WithSyncWriter(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin sync-writer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE sync_writer_flag SET v = 1`); err != nil {
		return fmt.Errorf("localstore: set sync-writer flag: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sync_writer_flag SET v = 0`); err != nil {
		return fmt.Errorf("localstore: clear sync-writer flag: %w", err)
	}

	return tx.Commit()
}
