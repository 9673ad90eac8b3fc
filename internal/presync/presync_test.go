package presync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetrees/sync/internal/localstore"
	"github.com/tunetrees/sync/internal/pull"
	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

func TestUnionGenresDedupesPreservingFirstOccurrenceOrder(t *testing.T) {
	got := unionGenres([]string{"irish-trad", "old-time"}, []string{"old-time", "bluegrass"}, []string{"irish-trad"})
	assert.Equal(t, []string{"irish-trad", "old-time", "bluegrass"}, got)
}

func TestUnionGenresHandlesEmptySets(t *testing.T) {
	assert.Empty(t, unionGenres())
	assert.Empty(t, unionGenres(nil, []string{}))
	assert.Equal(t, []string{"irish-trad"}, unionGenres(nil, []string{"irish-trad"}, nil))
}

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	ctx := context.Background()
	store, err := localstore.Open(ctx, ":memory:", registry.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExplicitGenreSelectionsReadsOnlyOwnUndeletedRows(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	exec := func(q string, args ...any) {
		_, err := store.DB().ExecContext(ctx, q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`, "u1", "irish-trad", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`, "u1", "old-time", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`, "u1", "bluegrass", "2026-07-29T10:00:00Z")
	exec(`UPDATE user_genre_selection SET deleted = 1 WHERE genre = ?`, "bluegrass")
	exec(`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`, "u2", "klezmer", "2026-07-29T10:00:00Z")

	b := &Builder{Store: store}
	got, err := b.explicitGenreSelections(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"irish-trad", "old-time"}, got)
}

func TestLocalMembershipGenresFollowsPlaylistTuneJoin(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	exec := func(q string, args ...any) {
		_, err := store.DB().ExecContext(ctx, q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO genre (id, name) VALUES (?, ?)`, "irish-trad", "Irish Traditional")
	exec(`INSERT INTO tune (id, title, genre, last_modified_at) VALUES (?, ?, ?, ?)`, "t1", "Blarney Pilgrim", "irish-trad", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO playlist (id, user_ref, name, last_modified_at) VALUES (?, ?, ?, ?)`, "p1", "u1", "Session", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO playlist_tune (playlist, tune, last_modified_at) VALUES (?, ?, ?)`, "p1", "t1", "2026-07-29T10:00:00Z")

	b := &Builder{Store: store}
	got, err := b.localMembershipGenres(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"irish-trad"}, got)

	got, err = b.localMembershipGenres(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func fakePreSyncRemote(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remote.PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := remote.PullResponse{}
		for _, tq := range req.Tables {
			resp.Tables = append(resp.Tables, remote.PullTableResult{Name: tq.Name, MaxLastModifiedAt: ""})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRunComputesUnionFromExplicitAndPlaylistAndMembership(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	exec := func(q string, args ...any) {
		_, err := store.DB().ExecContext(ctx, q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO user_genre_selection (user_ref, genre, last_modified_at) VALUES (?, ?, ?)`, "u1", "irish-trad", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO playlist (id, user_ref, name, genre_default, last_modified_at) VALUES (?, ?, ?, ?, ?)`,
		"p1", "u1", "Session", "old-time", "2026-07-29T10:00:00Z")

	srv := fakePreSyncRemote(t)
	defer srv.Close()

	client := remote.New(srv.URL)
	pipeline := pull.New(store, client)
	b := New(store, client, pipeline)

	genres, err := b.Run(ctx, "u1", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"irish-trad", "old-time"}, genres)
}

func TestRunReturnsNilForUnauthenticatedSession(t *testing.T) {
	store := openTestStore(t)
	b := &Builder{Store: store}

	genres, err := b.Run(context.Background(), "", false)
	require.NoError(t, err)
	assert.Nil(t, genres)
}

func TestPurgeOrphanAnnotationsSkipsOnEmptyEffectiveSet(t *testing.T) {
	store := openTestStore(t)
	b := &Builder{Store: store}

	n, err := b.PurgeOrphanAnnotations(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeOrphanAnnotationsDropsOutOfSetGenresButKeepsPrivateTunes(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	exec := func(q string, args ...any) {
		_, err := store.DB().ExecContext(ctx, q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO genre (id, name) VALUES (?, ?)`, "irish-trad", "Irish Traditional")
	exec(`INSERT INTO genre (id, name) VALUES (?, ?)`, "old-time", "Old Time")
	exec(`INSERT INTO tune (id, title, genre, last_modified_at) VALUES (?, ?, ?, ?)`, "t-kept", "Blarney Pilgrim", "irish-trad", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO tune (id, title, genre, last_modified_at) VALUES (?, ?, ?, ?)`, "t-dropped", "Soldier's Joy", "old-time", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO tune (id, title, private_for, genre, last_modified_at) VALUES (?, ?, ?, ?, ?)`,
		"t-private", "My Own Tune", "u1", "old-time", "2026-07-29T10:00:00Z")

	exec(`INSERT INTO note (id, tune, user_ref, body, last_modified_at) VALUES (?, ?, ?, ?, ?)`, "n-kept", "t-kept", "u1", "stays", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO note (id, tune, user_ref, body, last_modified_at) VALUES (?, ?, ?, ?, ?)`, "n-dropped", "t-dropped", "u1", "goes", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO note (id, tune, user_ref, body, last_modified_at) VALUES (?, ?, ?, ?, ?)`, "n-private", "t-private", "u1", "private, stays", "2026-07-29T10:00:00Z")
	exec(`INSERT INTO reference (id, tune, url, last_modified_at) VALUES (?, ?, ?, ?)`, "r-dropped", "t-dropped", "https://example.test", "2026-07-29T10:00:00Z")

	b := &Builder{Store: store}
	affected, err := b.PurgeOrphanAnnotations(ctx, "u1", []string{"irish-trad"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected, "one orphaned note plus one orphaned reference")

	var deleted int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT deleted FROM note WHERE id = ?`, "n-kept").Scan(&deleted))
	assert.Zero(t, deleted)
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT deleted FROM note WHERE id = ?`, "n-dropped").Scan(&deleted))
	assert.Equal(t, 1, deleted)
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT deleted FROM note WHERE id = ?`, "n-private").Scan(&deleted))
	assert.Zero(t, deleted, "a user's own private tune's notes are kept regardless of genre")
}
