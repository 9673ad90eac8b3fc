package remotestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/outbox"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
	"github.com/tunetrees/sync/internal/resolver"
)

// ApplyPush implements the server side of spec.md §6.2's POST /sync/push:
// for every batch, every upsert is compared against the row already on
// file under LWW (internal/resolver, the identical rule the client-side
// pull pipeline uses) so a push never regresses a row a different
// device already advanced further.
func (s *Store) ApplyPush(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error) {
	var resp remote.PushResponse

	for _, batch := range req.Batches {
		m, ok := s.reg.Lookup(batch.Table)
		if !ok {
			resp.Results = append(resp.Results, remote.PushResult{
				Table: batch.Table, Outcome: remote.OutcomeError,
				Error: fmt.Sprintf("unknown table %q", batch.Table),
			})
			continue
		}

		for _, wireRow := range batch.Upserts {
			result, err := s.applyUpsert(ctx, m, wireRow)
			if err != nil {
				result = remote.PushResult{Outcome: remote.OutcomeError, Error: err.Error()}
			}
			result.Table = m.Name
			resp.Results = append(resp.Results, result)
		}

		for _, key := range batch.Deletes {
			result := s.applyDelete(ctx, m, key)
			result.Table = m.Name
			resp.Results = append(resp.Results, result)
		}
	}

	return resp, nil
}

func (s *Store) applyUpsert(ctx context.Context, m registry.TableMeta, wireRow adapter.Row) (remote.PushResult, error) {
	row := adapter.ToLocal(wireRow, m)

	keyValues := make([]string, len(m.PrimaryKey))
	for i, k := range m.PrimaryKey {
		keyValues[i] = fmt.Sprintf("%v", row[k])
	}
	rowKey := outbox.Key(keyValues...)

	incoming := versionOf(row)

	existing, found, err := s.readVersion(ctx, m, keyValues)
	if err != nil {
		return remote.PushResult{}, err
	}

	if found && resolver.Resolve(resolver.StrategyNewest, existing, incoming) == resolver.KeepLocal {
		return remote.PushResult{RowKey: rowKey, Outcome: remote.OutcomeRejectedStale}, nil
	}

	if err := s.upsert(ctx, m, row); err != nil {
		return remote.PushResult{}, err
	}
	return remote.PushResult{RowKey: rowKey, Outcome: remote.OutcomeApplied}, nil
}

func (s *Store) applyDelete(ctx context.Context, m registry.TableMeta, key string) remote.PushResult {
	keyValues := strings.Split(key, "\x1f")
	pred, args := keyPredicate(m, keyValues)
	stmt := fmt.Sprintf("UPDATE %s SET `deleted` = 1, `sync_version` = `sync_version` + 1 WHERE %s", quoteIdent(m.Name), pred)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return remote.PushResult{RowKey: key, Outcome: remote.OutcomeError, Error: err.Error()}
	}
	return remote.PushResult{RowKey: key, Outcome: remote.OutcomeApplied}
}

func (s *Store) upsert(ctx context.Context, m registry.TableMeta, row adapter.Row) error {
	cols := m.Columns
	placeholders := make([]string, len(cols))
	values := make([]any, len(cols))
	var updateClauses []string
	for i, c := range cols {
		placeholders[i] = "?"
		values[i] = row[c]
		if !isKeyColumn(m, c) {
			updateClauses = append(updateClauses, fmt.Sprintf("%s = VALUES(%s)", quoteIdent(c), quoteIdent(c)))
		}
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		quoteIdent(m.Name), quoteIdentList(cols), strings.Join(placeholders, ", "), strings.Join(updateClauses, ", "),
	)
	_, err := s.db.ExecContext(ctx, stmt, values...)
	return err
}

func (s *Store) readVersion(ctx context.Context, m registry.TableMeta, keyValues []string) (resolver.Version, bool, error) {
	pred, args := keyPredicate(m, keyValues)
	stmt := fmt.Sprintf("SELECT `sync_version`, `last_modified_at` FROM %s WHERE %s", quoteIdent(m.Name), pred)

	var syncVersion int64
	var lastModifiedAt string
	err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&syncVersion, &lastModifiedAt)
	if err == sql.ErrNoRows {
		return resolver.Version{}, false, nil
	}
	if err != nil {
		return resolver.Version{}, false, fmt.Errorf("remotestore: read version of %s: %w", m.Name, err)
	}

	ts, _ := time.Parse(time.RFC3339, lastModifiedAt)
	return resolver.Version{SyncVersion: syncVersion, LastModifiedAt: ts.UnixNano()}, true, nil
}

func keyPredicate(m registry.TableMeta, keyValues []string) (string, []any) {
	parts := make([]string, len(m.PrimaryKey))
	args := make([]any, len(m.PrimaryKey))
	for i, k := range m.PrimaryKey {
		parts[i] = quoteIdent(k) + " = ?"
		args[i] = keyValues[i]
	}
	return strings.Join(parts, " AND "), args
}

func versionOf(row adapter.Row) resolver.Version {
	var v resolver.Version
	switch sv := row["sync_version"].(type) {
	case int64:
		v.SyncVersion = sv
	case float64:
		v.SyncVersion = int64(sv)
	}
	if s, ok := row["last_modified_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			v.LastModifiedAt = ts.UnixNano()
		}
	}
	return v
}
