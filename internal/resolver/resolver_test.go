package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetrees/sync/internal/resolver"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b resolver.Version
		want int
	}{
		{"equal", resolver.Version{SyncVersion: 3, LastModifiedAt: 100}, resolver.Version{SyncVersion: 3, LastModifiedAt: 100}, 0},
		{"higher sync_version wins", resolver.Version{SyncVersion: 4, LastModifiedAt: 1}, resolver.Version{SyncVersion: 3, LastModifiedAt: 999}, 1},
		{"lower sync_version loses", resolver.Version{SyncVersion: 2, LastModifiedAt: 999}, resolver.Version{SyncVersion: 3, LastModifiedAt: 1}, -1},
		{"tiebreak on timestamp", resolver.Version{SyncVersion: 3, LastModifiedAt: 50}, resolver.Version{SyncVersion: 3, LastModifiedAt: 100}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.Compare(tt.a, tt.b))
		})
	}
}

func TestResolveNewest(t *testing.T) {
	older := resolver.Version{SyncVersion: 1, LastModifiedAt: 1}
	newer := resolver.Version{SyncVersion: 2, LastModifiedAt: 1}

	assert.Equal(t, resolver.KeepLocal, resolver.Resolve(resolver.StrategyNewest, newer, older))
	assert.Equal(t, resolver.TakeRemote, resolver.Resolve(resolver.StrategyNewest, older, newer))
	assert.Equal(t, resolver.Noop, resolver.Resolve(resolver.StrategyNewest, older, older))
}

func TestResolveNewestSymmetric(t *testing.T) {
	// spec.md §8 property 3: swapping local/remote yields the
	// complementary outcome, for any pair of distinct versions.
	a := resolver.Version{SyncVersion: 5, LastModifiedAt: 10}
	b := resolver.Version{SyncVersion: 5, LastModifiedAt: 20}

	ab := resolver.Resolve(resolver.StrategyNewest, a, b)
	ba := resolver.Resolve(resolver.StrategyNewest, b, a)

	assert.Equal(t, resolver.TakeRemote, ab)
	assert.Equal(t, resolver.KeepLocal, ba)
}

func TestResolveOursAndTheirs(t *testing.T) {
	older := resolver.Version{SyncVersion: 1}
	newer := resolver.Version{SyncVersion: 2}

	assert.Equal(t, resolver.KeepLocal, resolver.Resolve(resolver.StrategyOurs, older, newer))
	assert.Equal(t, resolver.TakeRemote, resolver.Resolve(resolver.StrategyTheirs, newer, older))
	assert.Equal(t, resolver.Noop, resolver.Resolve(resolver.StrategyManual, older, newer))
}
