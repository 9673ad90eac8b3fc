package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetrees/sync/internal/adapter"
	"github.com/tunetrees/sync/internal/registry"
)

func tuneMeta() registry.TableMeta {
	return registry.TableMeta{
		Name:        "tune",
		PrimaryKey:  []string{"id"},
		Columns:     []string{"id", "title", "private_for", "genre", "mode", "sync_version", "last_modified_at", "device_id", "deleted"},
		BoolColumns: []string{"deleted"},
		PushRule:    registry.PushRule{ConflictTarget: []string{"id"}},
	}
}

func TestToLocalRenamesAndCoerces(t *testing.T) {
	m := tuneMeta()
	remote := adapter.Row{
		"id":         "t1",
		"title":      "Blarney Pilgrim",
		"privateFor": nil,
		"genre":      "irish-trad",
		"deleted":    int64(1),
	}

	local := adapter.ToLocal(remote, m)

	assert.Equal(t, "t1", local["id"])
	assert.Equal(t, nil, local["private_for"])
	assert.Equal(t, true, local["deleted"])
}

func TestToRemoteStripsLocalOnlyAndCases(t *testing.T) {
	m := tuneMeta()
	local := adapter.Row{
		"id":          "t1",
		"private_for": "user-1",
		"genre":       "irish-trad",
		"deleted":     false,
		"_outbox_seq": int64(42),
	}

	remote := adapter.ToRemote(local, m)

	assert.Equal(t, "user-1", remote["privateFor"])
	assert.Equal(t, int64(0), remote["deleted"])
	_, hasOutboxSeq := remote["_outbox_seq"]
	assert.False(t, hasOutboxSeq)
}

func TestRoundTripPreservesKeyAndBool(t *testing.T) {
	m := tuneMeta()
	original := adapter.Row{"id": "t1", "genre": "irish-trad", "deleted": true}

	remote := adapter.ToRemote(original, m)
	back := adapter.ToLocal(remote, m)

	assert.Equal(t, "t1", back["id"])
	assert.Equal(t, true, back["deleted"])
}

func TestNormalizeTimestampAcceptsLegacyForm(t *testing.T) {
	got, err := adapter.NormalizeTimestamp("2026-07-29 10:30:00")
	assert.NoError(t, err)
	assert.Equal(t, "2026-07-29T10:30:00Z", got)
}

func TestNormalizeTimestampRejectsGarbage(t *testing.T) {
	_, err := adapter.NormalizeTimestamp("not-a-timestamp")
	assert.Error(t, err)
}

func TestConflictKeysUsesCamelCase(t *testing.T) {
	m := registry.TableMeta{PushRule: registry.PushRule{ConflictTarget: []string{"user_ref", "playlist"}}}
	assert.Equal(t, []string{"userRef", "playlist"}, adapter.ConflictKeys(m))
}
