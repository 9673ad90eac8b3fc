// Package presync implements the ordered metadata pre-fetch and
// effective-genre-set computation from spec.md §4.9: the subsystem that
// lets large catalog tables download only the slice a user needs
// without orphaning existing playlist-tune memberships.
package presync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/pull"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

// MetadataTables is the ordered small-table pre-fetch list from
// spec.md §4.9 step 1.
func MetadataTables() []string { return registry.PreSyncTables() }

// Builder runs the pre-sync metadata pull and computes U.
type Builder struct {
	Store  *localstore.Store
	Client *remote.Client
	Pull   *pull.Pipeline
}

// New builds a Builder sharing the store/client/pull pipeline the
// orchestrator already owns.
func New(store *localstore.Store, client *remote.Client, pullPipeline *pull.Pipeline) *Builder {
	return &Builder{Store: store, Client: client, Pull: pullPipeline}
}

// Run executes spec.md §4.9's algorithm for one sync cycle and returns
// the effective genre set U (nil when there is no authenticated session,
// i.e. userID is empty — §4.9's guard clause).
func (b *Builder) Run(ctx context.Context, userID string, isInitialSync bool) ([]string, error) {
	if userID == "" {
		return nil, nil
	}

	sctx := pull.Context{UserID: userID, IsInitialSync: isInitialSync}
	if _, err := b.Pull.RunTables(ctx, sctx, MetadataTables()); err != nil {
		return nil, fmt.Errorf("presync: metadata pre-fetch: %w", err)
	}

	e, err := b.explicitGenreSelections(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := b.playlistDefaultGenres(ctx, userID)
	if err != nil {
		return nil, err
	}

	var x []string
	if isInitialSync {
		x, err = b.remoteMembershipGenres(ctx, userID)
	} else {
		x, err = b.localMembershipGenres(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	return unionGenres(e, p, x), nil
}

func (b *Builder) explicitGenreSelections(ctx context.Context, userID string) ([]string, error) {
	rows, err := b.Store.DB().QueryContext(ctx, `SELECT genre FROM user_genre_selection WHERE user_ref = ? AND deleted = 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("presync: read user_genre_selection: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (b *Builder) playlistDefaultGenres(ctx context.Context, userID string) ([]string, error) {
	rows, err := b.Store.DB().QueryContext(ctx, `
		SELECT DISTINCT genre_default FROM playlist
		WHERE user_ref = ? AND deleted = 0 AND genre_default IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("presync: read playlist genre defaults: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// localMembershipGenres reads X from the local store: genres referenced
// by any playlist-tune membership already visible to the user.
func (b *Builder) localMembershipGenres(ctx context.Context, userID string) ([]string, error) {
	rows, err := b.Store.DB().QueryContext(ctx, `
		SELECT DISTINCT t.genre
		FROM playlist_tune pt
		JOIN playlist p ON p.id = pt.playlist
		JOIN tune t ON t.id = pt.tune
		WHERE p.user_ref = ? AND pt.deleted = 0 AND p.deleted = 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("presync: read local membership genres: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, rows.Err()
}

func unionGenres(sets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, g := range set {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}
