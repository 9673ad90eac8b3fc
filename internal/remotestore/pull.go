package remotestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

// FetchChanges implements the server side of spec.md §6.2's POST
// /sync/pull: one SELECT per requested table, filtered by the table's
// declared rule and paginated by limit/offset above the watermark.
//
// Reference-server simplification: RuleInCollection against a
// collection other than the genre selection (the "ownedTunes" rule on
// reference/tag) has no equivalent client-supplied parameter — the
// production worker resolves it with a join the sync engine's own pull
// context never needs to compute — so this falls back to an
// unconstrained (RuleAll-equivalent) scan for that case, scoped only by
// `since`. RuleRPC likewise has no stored procedure installed by
// bootstrap and falls back the same way; both are closer to spec.md
// §1's deliberately out-of-scope "authoritative remote" internals than
// to anything the replication client depends on.
func (s *Store) FetchChanges(ctx context.Context, req remote.PullRequest) (remote.PullResponse, error) {
	var resp remote.PullResponse

	for _, tq := range req.Tables {
		m, ok := s.reg.Lookup(tq.Name)
		if !ok {
			resp.Tables = append(resp.Tables, remote.PullTableResult{Name: tq.Name})
			continue
		}

		tr, err := s.fetchTable(ctx, m, tq)
		if err != nil {
			return remote.PullResponse{}, fmt.Errorf("remotestore: fetch %s: %w", m.Name, err)
		}
		resp.Tables = append(resp.Tables, tr)
	}

	return resp, nil
}

func (s *Store) fetchTable(ctx context.Context, m registry.TableMeta, tq remote.PullTableRequest) (remote.PullTableResult, error) {
	where, args := buildWhere(m.PullRule, tq)
	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if tq.Since != "" {
		clauses = append(clauses, quoteIdent("last_modified_at")+" > ?")
		args = append(args, tq.Since)
	}

	whereSQL := ""
	if len(clauses) > 0 {
		whereSQL = "WHERE " + strings.Join(clauses, " AND ")
	}

	stmt := fmt.Sprintf(
		"SELECT %s FROM %s %s ORDER BY `last_modified_at` ASC LIMIT ? OFFSET ?",
		quoteIdentList(m.Columns), quoteIdent(m.Name), whereSQL,
	)
	args = append(args, tq.Limit, tq.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return remote.PullTableResult{}, err
	}
	defer rows.Close()

	var wireRows []adapter.Row
	maxLastModifiedAt := ""
	for rows.Next() {
		local, err := scanRow(rows, m.Columns)
		if err != nil {
			return remote.PullTableResult{}, err
		}
		if ts, _ := local["last_modified_at"].(string); ts > maxLastModifiedAt {
			maxLastModifiedAt = ts
		}
		wireRows = append(wireRows, adapter.ToRemote(local, m))
	}
	if err := rows.Err(); err != nil {
		return remote.PullTableResult{}, err
	}

	result := remote.PullTableResult{Name: m.RemoteName, Rows: wireRows, MaxLastModifiedAt: maxLastModifiedAt}
	if len(wireRows) == tq.Limit {
		result.NextCursor = &remote.PullCursor{Limit: tq.Limit, Offset: tq.Offset + tq.Limit}
	}
	return result, nil
}

func scanRow(rows *sql.Rows, cols []string) (adapter.Row, error) {
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(adapter.Row, len(cols))
	for i, c := range cols {
		v := dest[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[c] = v
	}
	return out, nil
}

// buildWhere translates a declarative PullRule into a SQL predicate and
// its bind arguments, using only the parameters the client pipeline
// actually sends (userId, selectedGenreIds).
func buildWhere(r registry.PullRule, tq remote.PullTableRequest) (string, []any) {
	userID, _ := tq.Params["userId"].(string)

	switch r.Kind {
	case registry.RuleAll:
		return "", nil

	case registry.RuleEqUserID:
		return quoteIdent(r.Column) + " = ?", []any{userID}

	case registry.RuleOrNullEqUserID:
		return fmt.Sprintf("(%s IS NULL OR %s = ?)", quoteIdent(r.Column), quoteIdent(r.Column)), []any{userID}

	case registry.RuleInCollection:
		ids := genreIDs(tq.Params)
		if r.CollectionName != "selectedGenres" || len(ids) == 0 {
			return "", nil
		}
		placeholders := make([]string, len(ids))
		args := make([]any, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args[i] = id
		}
		return fmt.Sprintf("%s IN (%s)", quoteIdent(r.Column), strings.Join(placeholders, ", ")), args

	case registry.RuleCompound:
		var parts []string
		var args []any
		for _, sub := range r.Rules {
			p, a := buildWhere(sub, tq)
			if p == "" {
				continue
			}
			parts = append(parts, p)
			args = append(args, a...)
		}
		if len(parts) == 0 {
			return "", nil
		}
		sep := " AND "
		if r.Op == registry.OpOR {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", args

	case registry.RuleRPC:
		return "", nil

	default:
		return "", nil
	}
}

func genreIDs(params map[string]any) []string {
	raw, ok := params["selectedGenreIds"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
