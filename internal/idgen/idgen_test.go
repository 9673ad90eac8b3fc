package idgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetrees/sync/internal/idgen"
)

func TestNewProducesValidV7IDs(t *testing.T) {
	a := idgen.New()
	b := idgen.New()

	assert.NotEqual(t, a, b)
	assert.True(t, idgen.Valid(a))
	assert.True(t, idgen.Valid(b))
}

func TestValidRejectsNonUUIDAndWrongVersion(t *testing.T) {
	assert.False(t, idgen.Valid("not-a-uuid"))
	assert.False(t, idgen.Valid(""))
	// A v4 UUID parses fine but must fail the version-7 check.
	assert.False(t, idgen.Valid("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
}
