package remotestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunetrees/sync/internal/registry"
)

// bootstrap creates every registered table if it does not already
// exist. Column types are deliberately generic (this is a reference
// server, not the production TuneTrees schema): primary-key columns are
// VARCHAR, sync_version is BIGINT, last_modified_at, deleted and
// device_id get fixed types, and every other column (foreign-key
// columns included) is TEXT so any JSON
// scalar the client sends round-trips without a schema-mismatch error.
func (s *Store) bootstrap(ctx context.Context) error {
	for _, m := range s.reg.SyncableTables() {
		if err := s.createTable(ctx, m); err != nil {
			return err
		}
	}
	for _, m := range s.reg.ReferenceTables() {
		if err := s.createTable(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createTable(ctx context.Context, m registry.TableMeta) error {
	var cols []string
	for _, c := range m.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(c), columnType(m, c)))
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdentList(m.PrimaryKey)))

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteIdent(m.Name), strings.Join(cols, ",\n  "),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("remotestore: create table %s: %w", m.Name, err)
	}
	return nil
}

func columnType(m registry.TableMeta, col string) string {
	switch col {
	case "sync_version":
		return "BIGINT NOT NULL DEFAULT 0"
	case "deleted":
		return "TINYINT NOT NULL DEFAULT 0"
	case "last_modified_at":
		return "VARCHAR(32) NOT NULL"
	case "device_id":
		return "VARCHAR(128)"
	}
	if isKeyColumn(m, col) {
		return "VARCHAR(128) NOT NULL"
	}
	return "TEXT"
}

func isKeyColumn(m registry.TableMeta, col string) bool {
	for _, k := range m.PrimaryKey {
		if k == col {
			return true
		}
	}
	return false
}

func quoteIdent(s string) string { return "`" + s + "`" }

func quoteIdentList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return strings.Join(out, ", ")
}
