package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tunetrees/sync/internal/registry"
)

// keySepExpr yields the separator outbox.Key uses to join composite-key
// column values. It is the SQLite char() call that produces the same
// byte, so triggers and Go code agree on one row_key encoding.
const keySepExpr = "char(31)"

// installTriggers creates the AFTER INSERT/UPDATE/DELETE triggers that
// implement spec.md §4.3's outbox-population contract for every
// CategoryUser table. Reference tables get no triggers: they are never
// written locally, so they never need one.
//
// SQLite cannot reassign NEW column values mid-trigger the way a
// PL/pgSQL BEFORE trigger can, so the bump runs in its own AFTER UPDATE
// trigger as a nested UPDATE, guarded by WHEN NEW.sync_version =
// OLD.sync_version so a write that already carries a bumped version is
// not bumped again. The enqueue trigger is guarded the other way
// (NEW.sync_version <> OLD.sync_version): it skips the unbumped outer
// UPDATE and fires for the nested bump UPDATE (or for a write that
// bumped the version itself), so each UPDATE yields exactly one outbox
// row whose payload is the bumped row. Both the bump and the enqueue
// are further guarded by the sync_writer_flag so that rows written by
// the pull pipeline never loop back into the outbox (spec.md §4.6 step 2).
func installTriggers(ctx context.Context, tx *sql.Tx, reg *registry.Registry) error {
	for _, m := range reg.SyncableTables() {
		stmts, err := triggerSQL(m)
		if err != nil {
			return fmt.Errorf("localstore: build triggers for %s: %w", m.Name, err)
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("localstore: install trigger for %s: %w", m.Name, err)
			}
		}
	}
	return nil
}

func triggerSQL(m registry.TableMeta) ([]string, error) {
	if len(m.PrimaryKey) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", m.Name)
	}

	newPred := joinPred("NEW", m.PrimaryKey)
	oldPred := joinPred("OLD", m.PrimaryKey)
	rowKeyNew := rowKeyExpr("NEW", m.PrimaryKey)
	rowKeyOld := rowKeyExpr("OLD", m.PrimaryKey)
	payloadFromTable := jsonObjectExpr(m.Name, m.Columns)
	payloadFromOld := jsonObjectExpr("OLD", m.Columns)
	bumpGuard := "WHEN NEW.sync_version = OLD.sync_version AND (SELECT v FROM sync_writer_flag LIMIT 1) = 0"

	insertTrig := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_ai
AFTER INSERT ON %[1]s
WHEN (SELECT v FROM sync_writer_flag LIMIT 1) = 0
BEGIN
    INSERT INTO outbox (table_name, row_key, operation, payload_snapshot, enqueued_at)
    SELECT '%[1]s', %[2]s, 'insert', %[3]s, strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
    FROM %[1]s WHERE %[4]s;
END;`, m.Name, rowKeyNew, payloadFromTable, newPred)

	updateTrig := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_au_bump
AFTER UPDATE ON %[1]s
%[5]s
BEGIN
    UPDATE %[1]s SET sync_version = sync_version + 1, last_modified_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
    WHERE %[4]s;
END;`, m.Name, rowKeyNew, payloadFromTable, newPred, bumpGuard)

	updateEnqueueTrig := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_au_enqueue
AFTER UPDATE ON %[1]s
WHEN (SELECT v FROM sync_writer_flag LIMIT 1) = 0 AND NEW.sync_version <> OLD.sync_version
BEGIN
    INSERT INTO outbox (table_name, row_key, operation, payload_snapshot, enqueued_at)
    SELECT '%[1]s', %[2]s, 'update', %[3]s, strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
    FROM %[1]s WHERE %[4]s;
END;`, m.Name, rowKeyNew, payloadFromTable, newPred)

	deleteTrig := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_ad
AFTER DELETE ON %[1]s
WHEN (SELECT v FROM sync_writer_flag LIMIT 1) = 0
BEGIN
    INSERT INTO outbox (table_name, row_key, operation, payload_snapshot, enqueued_at)
    VALUES ('%[1]s', %[2]s, 'delete', %[3]s, strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now'));
END;`, m.Name, rowKeyOld, payloadFromOld)

	// The version guard on updateEnqueueTrig makes the result independent
	// of the order in which SQLite fires the two AFTER UPDATE triggers.
	return []string{insertTrig, updateTrig, updateEnqueueTrig, deleteTrig}, nil
}

func joinPred(alias string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s = %s.%s", c, alias, c)
	}
	return strings.Join(parts, " AND ")
}

func rowKeyExpr(alias string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s.%s", alias, c)
	}
	return strings.Join(parts, " || "+keySepExpr+" || ")
}

func jsonObjectExpr(alias string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("'%s', %s.%s", c, alias, c)
	}
	return "json_object(" + strings.Join(parts, ", ") + ")"
}
