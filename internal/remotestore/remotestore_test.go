package remotestore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetrees/sync/internal/registry"
	"github.com/tunetrees/sync/internal/remote"
)

func TestColumnTypePicksFixedTypesForSyncColumns(t *testing.T) {
	m := registry.TableMeta{PrimaryKey: []string{"id"}}

	assert.Equal(t, "BIGINT NOT NULL DEFAULT 0", columnType(m, "sync_version"))
	assert.Equal(t, "TINYINT NOT NULL DEFAULT 0", columnType(m, "deleted"))
	assert.Equal(t, "VARCHAR(32) NOT NULL", columnType(m, "last_modified_at"))
	assert.Equal(t, "VARCHAR(128)", columnType(m, "device_id"))
	assert.Equal(t, "VARCHAR(128) NOT NULL", columnType(m, "id"), "primary key columns get a bounded varchar, not TEXT")
	assert.Equal(t, "TEXT", columnType(m, "notes"))
}

func TestIsKeyColumnMatchesOnlyDeclaredPrimaryKeyParts(t *testing.T) {
	m := registry.TableMeta{PrimaryKey: []string{"playlist_ref", "tune_ref"}}

	assert.True(t, isKeyColumn(m, "playlist_ref"))
	assert.True(t, isKeyColumn(m, "tune_ref"))
	assert.False(t, isKeyColumn(m, "position"))
}

func TestQuoteIdentAndQuoteIdentList(t *testing.T) {
	assert.Equal(t, "`user_ref`", quoteIdent("user_ref"))
	assert.Equal(t, "`a`, `b`", quoteIdentList([]string{"a", "b"}))
}

func TestBuildWhereRuleAllHasNoPredicate(t *testing.T) {
	where, args := buildWhere(registry.All(), remote.PullTableRequest{})
	assert.Equal(t, "", where)
	assert.Empty(t, args)
}

func TestBuildWhereEqUserID(t *testing.T) {
	rule := registry.EqUserID("user_ref")
	tq := remote.PullTableRequest{Params: map[string]any{"userId": "u1"}}

	where, args := buildWhere(rule, tq)
	assert.Equal(t, "`user_ref` = ?", where)
	assert.Equal(t, []any{"u1"}, args)
}

func TestBuildWhereOrNullEqUserID(t *testing.T) {
	rule := registry.OrNullEqUserID("private_for")
	tq := remote.PullTableRequest{Params: map[string]any{"userId": "u1"}}

	where, args := buildWhere(rule, tq)
	assert.Equal(t, "(`private_for` IS NULL OR `private_for` = ?)", where)
	assert.Equal(t, []any{"u1"}, args)
}

func TestBuildWhereInCollectionOnlyHandlesSelectedGenres(t *testing.T) {
	rule := registry.InCollection("genre_ref", "selectedGenres")

	where, args := buildWhere(rule, remote.PullTableRequest{
		Params: map[string]any{"selectedGenreIds": []any{"g1", "g2"}},
	})
	assert.Equal(t, "`genre_ref` IN (?, ?)", where)
	assert.Equal(t, []any{"g1", "g2"}, args)

	// A collection name the server has no resolver for falls back to no
	// predicate rather than an error.
	other := registry.InCollection("genre_ref", "ownedTunes")
	where, args = buildWhere(other, remote.PullTableRequest{
		Params: map[string]any{"selectedGenreIds": []any{"g1"}},
	})
	assert.Equal(t, "", where)
	assert.Empty(t, args)
}

func TestBuildWhereInCollectionEmptyIDsYieldsNoPredicate(t *testing.T) {
	rule := registry.InCollection("genre_ref", "selectedGenres")
	where, args := buildWhere(rule, remote.PullTableRequest{})
	assert.Equal(t, "", where)
	assert.Empty(t, args)
}

func TestBuildWhereCompoundJoinsSubRulesWithDeclaredOperator(t *testing.T) {
	rule := registry.Compound(registry.OpOR,
		registry.OrNullEqUserID("private_for"),
		registry.EqUserID("owner_ref"),
	)
	tq := remote.PullTableRequest{Params: map[string]any{"userId": "u1"}}

	where, args := buildWhere(rule, tq)
	assert.Equal(t, "(`private_for` IS NULL OR `private_for` = ? OR `owner_ref` = ?)", where)
	assert.Equal(t, []any{"u1", "u1"}, args)
}

func TestBuildWhereRPCHasNoStoredProcedureFallback(t *testing.T) {
	rule := registry.RPC("resolve_owned_tunes", "userId")
	where, args := buildWhere(rule, remote.PullTableRequest{})
	assert.Equal(t, "", where)
	assert.Empty(t, args)
}

func TestGenreIDsAcceptsBothWireShapes(t *testing.T) {
	assert.Equal(t, []string{"g1", "g2"}, genreIDs(map[string]any{"selectedGenreIds": []string{"g1", "g2"}}))
	assert.Equal(t, []string{"g1", "g2"}, genreIDs(map[string]any{"selectedGenreIds": []any{"g1", "g2"}}))
	assert.Nil(t, genreIDs(map[string]any{}))
	assert.Nil(t, genreIDs(map[string]any{"selectedGenreIds": []any{1, 2}}))
}

func TestKeyPredicateJoinsCompositePrimaryKeyWithAND(t *testing.T) {
	m := registry.TableMeta{PrimaryKey: []string{"playlist_ref", "tune_ref"}}
	pred, args := keyPredicate(m, []string{"p1", "t1"})
	assert.Equal(t, "`playlist_ref` = ? AND `tune_ref` = ?", pred)
	assert.Equal(t, []any{"p1", "t1"}, args)
}

func TestVersionOfParsesWireIntegerShapes(t *testing.T) {
	v := versionOf(map[string]any{"sync_version": int64(3), "last_modified_at": "2026-07-29T10:00:00Z"})
	assert.Equal(t, int64(3), v.SyncVersion)
	assert.NotZero(t, v.LastModifiedAt)

	// JSON-decoded numbers arrive as float64; the conversion must not
	// silently drop them.
	v = versionOf(map[string]any{"sync_version": float64(7)})
	assert.Equal(t, int64(7), v.SyncVersion)
}
