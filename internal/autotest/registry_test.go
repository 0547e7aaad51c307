package autotest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistry_MonotonicIDs verifies test IDs increase with start order.
func TestRegistry_MonotonicIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()

	first := registry.register("suite-1", "case-a", func() {})
	second := registry.register("suite-1", "case-b", func() {})

	assert.Less(t, first, second, "later tests sort after earlier ones")

	running := registry.GetRunningTests()
	require.Len(t, running, 2)
	assert.Equal(t, first, running[0].TestID)
	assert.Equal(t, second, running[1].TestID)
}

// TestRegistry_DoneRemovesEntry verifies settled tests leave the registry.
func TestRegistry_DoneRemovesEntry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()
	testID := registry.register("suite-1", "case-a", func() {})

	registry.done(testID)

	assert.Empty(t, registry.GetRunningTests())
	assert.ErrorIs(t, registry.CancelTest(testID), ErrTestNotRunning)
}

// TestRegistry_CancelInvokesContext verifies cancellation reaches the case
// context and removes the bookkeeping entry.
func TestRegistry_CancelInvokesContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	testID := registry.register("suite-1", "case-a", cancel)

	require.NoError(t, registry.CancelTest(testID))

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel should have cancelled the case context")
	}

	assert.Empty(t, registry.GetRunningTests())
}
