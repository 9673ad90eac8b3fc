package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetrees/sync/internal/registry"
)

func TestDefaultRegistryLooksUpEveryTable(t *testing.T) {
	reg := registry.Default()

	for _, name := range []string{
		"user_profile", "playlist", "tune", "playlist_tune", "practice_record",
		"daily_practice_queue", "note", "reference", "tag", "table_transient_data",
		"user_genre_selection", "preferences", "genre", "tune_type", "instrument",
		"genre_tune_type",
	} {
		_, ok := reg.Lookup(name)
		assert.Truef(t, ok, "expected table %q to be registered", name)
	}
}

func TestReferenceTablesUseRuleAll(t *testing.T) {
	reg := registry.Default()
	for _, m := range reg.ReferenceTables() {
		assert.Equal(t, registry.RuleAll, m.PullRule.Kind, "reference table %q should be unconditionally pulled", m.Name)
		assert.Equal(t, registry.CategoryReference, m.Category)
	}
}

func TestFKOrderRespectsDependencies(t *testing.T) {
	reg := registry.Default()
	order := reg.FKOrder()

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}

	for _, name := range order {
		m := reg.MustLookup(name)
		for _, dep := range m.DependsOn {
			assert.Lessf(t, pos[dep], pos[name], "%s must be pulled after its dependency %s", name, dep)
		}
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	r := registry.New()
	r.Register(registry.TableMeta{Name: "widget"})

	assert.Panics(t, func() {
		r.Register(registry.TableMeta{Name: "widget"})
	})
}

func TestFKOrderPanicsOnCycle(t *testing.T) {
	r := registry.New()
	r.Register(registry.TableMeta{Name: "a", DependsOn: []string{"b"}})
	r.Register(registry.TableMeta{Name: "b", DependsOn: []string{"a"}})

	assert.Panics(t, func() {
		r.FKOrder()
	})
}

func TestMustLookupPanicsOnUnknownTable(t *testing.T) {
	reg := registry.New()
	assert.Panics(t, func() {
		reg.MustLookup("does_not_exist")
	})
}

func TestPreSyncTablesExcludesCatalogTables(t *testing.T) {
	tables := registry.PreSyncTables()
	require.NotEmpty(t, tables)
	for _, name := range tables {
		assert.NotEqual(t, "tune", name)
		assert.NotEqual(t, "note", name)
		assert.NotEqual(t, "practice_record", name)
	}
}
