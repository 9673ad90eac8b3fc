package syncerr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunetrees/sync/internal/syncerr"
)

func TestFatalClassifiesSchemaAuthAndCorruption(t *testing.T) {
	assert.True(t, syncerr.Fatal(syncerr.ErrSchemaMismatch))
	assert.True(t, syncerr.Fatal(syncerr.ErrAuthFailure))
	assert.True(t, syncerr.Fatal(syncerr.ErrStoreCorrupt))
}

func TestFatalFalseForRetryableCategories(t *testing.T) {
	assert.False(t, syncerr.Fatal(syncerr.ErrTransient))
	assert.False(t, syncerr.Fatal(syncerr.ErrStaleWrite))
	assert.False(t, syncerr.Fatal(syncerr.ErrFKViolation))
	assert.False(t, syncerr.Fatal(syncerr.ErrDeferredFixpoint))
	assert.False(t, syncerr.Fatal(nil))
}

func TestFatalSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("push: remote rejected: %w", syncerr.ErrAuthFailure)
	assert.True(t, syncerr.Fatal(wrapped))
}
