// Package remotestore is the reference remote worker's storage layer
// behind cmd/tunetrees-remoted: the "remote authoritative relational
// store" spec.md §1 names as an external collaborator. It is backed by
// the same Dolt-over-MySQL-wire-protocol stack the teacher uses for its
// own authoritative store in server mode (internal/storage/dolt.DoltStore),
// connected with database/sql + github.com/go-sql-driver/mysql rather
// than the teacher's CGO-only embedded driver, since a reference test
// server has no reason to require a C toolchain — the dolt sql-server
// process speaks the same MySQL wire protocol either way.
package remotestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tunetrees/sync/internal/registry"
)

// Store wraps the remote worker's database handle plus the registry it
// uses to know each table's sync contract — the same registry the
// client-side engine uses, so client and server never disagree about a
// table's shape.
type Store struct {
	db  *sql.DB
	reg *registry.Registry
}

// Open connects to a running dolt sql-server (or any MySQL-wire-protocol
// server) at dsn, e.g. "root@tcp(127.0.0.1:3307)/tunetrees", and ensures
// the registry's tables exist.
func Open(ctx context.Context, dsn string, reg *registry.Registry) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("remotestore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("remotestore: ping: %w", err)
	}

	s := &Store{db: db, reg: reg}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for the RPC-table helpers that need
// to issue hand-written queries beyond the generic row I/O below.
func (s *Store) DB() *sql.DB { return s.db }

// Registry exposes the table contract set the server enforces requests
// against.
func (s *Store) Registry() *registry.Registry { return s.reg }
