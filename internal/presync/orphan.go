package presync

import (
	"context"
	"fmt"
)

// PurgeOrphanAnnotations implements spec.md §4.9's complementary orphan
// cleanup: when a user removes a genre from their selection while local
// data exists, delete notes/references tied exclusively to tunes whose
// genre is absent from the new effective set U (and that are not the
// user's own private tunes, which are always kept regardless of genre).
// Memberships are never touched here — they represent stronger user
// intent and are preserved per spec.md §4.9's rationale.
func (b *Builder) PurgeOrphanAnnotations(ctx context.Context, userID string, effectiveGenres []string) (int64, error) {
	if len(effectiveGenres) == 0 {
		// An empty U after a real selection change would purge
		// everything; treat it as "filter not computed yet" and skip,
		// matching the §4.9 guard clause for "no provider configured".
		return 0, nil
	}

	placeholders := make([]string, len(effectiveGenres))
	args := make([]any, len(effectiveGenres))
	for i, g := range effectiveGenres {
		placeholders[i] = "?"
		args[i] = g
	}
	inClause := placeholders[0]
	for _, ph := range placeholders[1:] {
		inClause += ", " + ph
	}

	query := fmt.Sprintf(`
		UPDATE note SET deleted = 1, sync_version = sync_version + 1
		WHERE id IN (
			SELECT n.id FROM note n
			JOIN tune t ON t.id = n.tune
			WHERE n.deleted = 0
			  AND t.private_for IS NULL
			  AND t.genre NOT IN (%s)
		)`, inClause)

	res, err := b.Store.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("presync: purge orphan notes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	query2 := fmt.Sprintf(`
		UPDATE reference SET deleted = 1, sync_version = sync_version + 1
		WHERE id IN (
			SELECT r.id FROM reference r
			JOIN tune t ON t.id = r.tune
			WHERE r.deleted = 0
			  AND t.private_for IS NULL
			  AND t.genre NOT IN (%s)
		)`, inClause)
	res2, err := b.Store.DB().ExecContext(ctx, query2, args...)
	if err != nil {
		return affected, fmt.Errorf("presync: purge orphan references: %w", err)
	}
	affected2, err := res2.RowsAffected()
	if err != nil {
		return affected, err
	}

	return affected + affected2, nil
}
