package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowSet_BoundedAtCapacity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	set := newWindowSet()
	base := time.Now()

	for i := 0; i < windowCapacity+20; i++ {
		set.append("rule-1", windowPoint{
			at:         base.Add(time.Duration(i) * time.Second),
			durationMs: float64(i),
		})
	}

	points := set.snapshot("rule-1")
	require.Len(t, points, windowCapacity)

	// The oldest 20 points were dropped.
	assert.InDelta(t, 20, points[0].durationMs, 1e-9)
	assert.InDelta(t, float64(windowCapacity+19), points[len(points)-1].durationMs, 1e-9)
}

func TestWindowSet_SnapshotIsACopy(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	set := newWindowSet()
	set.append("rule-1", windowPoint{durationMs: 10})

	points := set.snapshot("rule-1")
	points[0].durationMs = 999

	again := set.snapshot("rule-1")
	assert.InDelta(t, 10, again[0].durationMs, 1e-9)

	assert.Nil(t, set.snapshot("unknown"))
}

func TestTrend_StableBelowMinimumHistory(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	points := make([]windowPoint, trendMinPoints-1)
	for i := range points {
		points[i] = windowPoint{durationMs: float64(i * 100)}
	}

	assert.Equal(t, TrendStable, trend(points))
}

func TestTrend_Classification(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	flat := make([]windowPoint, 20)
	for i := range flat {
		flat[i] = windowPoint{durationMs: 100}
	}

	assert.Equal(t, TrendStable, trend(flat))

	degrading := make([]windowPoint, 20)
	for i := range degrading {
		if i < 10 {
			degrading[i] = windowPoint{durationMs: 100}
		} else {
			degrading[i] = windowPoint{durationMs: 150}
		}
	}

	assert.Equal(t, TrendDegrading, trend(degrading))

	improving := make([]windowPoint, 20)
	for i := range improving {
		if i < 10 {
			improving[i] = windowPoint{durationMs: 150}
		} else {
			improving[i] = windowPoint{durationMs: 100}
		}
	}

	assert.Equal(t, TrendImproving, trend(improving))

	// Within the ±10% band stays stable.
	drift := make([]windowPoint, 20)
	for i := range drift {
		if i < 10 {
			drift[i] = windowPoint{durationMs: 100}
		} else {
			drift[i] = windowPoint{durationMs: 105}
		}
	}

	assert.Equal(t, TrendStable, trend(drift))
}

func TestTrend_ZeroBaseline(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	points := make([]windowPoint, 20)
	for i := 10; i < 20; i++ {
		points[i] = windowPoint{durationMs: 50}
	}

	assert.Equal(t, TrendStable, trend(points))
}
