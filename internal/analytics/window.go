package analytics

import (
	"sync"
	"time"
)

// windowCapacity bounds the per-rule in-process history used for fast reads
// and trend detection without a store round-trip.
const windowCapacity = 100

type (
	// windowPoint is one execution observation in the rolling window.
	windowPoint struct {
		at         time.Time
		durationMs float64
		success    bool
		triggered  bool
	}

	// rollingWindow keeps the last windowCapacity observations for one rule.
	// Access is synchronized by the owning windowSet.
	rollingWindow struct {
		points []windowPoint
	}

	// windowSet owns the per-rule rolling windows. RecordExecution appends
	// from potentially concurrent callers; reads come from trend snapshots.
	windowSet struct {
		windows map[string]*rollingWindow
		mutex   sync.RWMutex
	}
)

func newWindowSet() *windowSet {
	return &windowSet{
		windows: make(map[string]*rollingWindow),
	}
}

// append records one observation, dropping the oldest point once the window
// is full.
func (s *windowSet) append(ruleID string, point windowPoint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, exists := s.windows[ruleID]
	if !exists {
		w = &rollingWindow{points: make([]windowPoint, 0, windowCapacity)}
		s.windows[ruleID] = w
	}

	if len(w.points) == windowCapacity {
		copy(w.points, w.points[1:])
		w.points = w.points[:windowCapacity-1]
	}

	w.points = append(w.points, point)
}

// snapshot returns a copy of the rule's window points in arrival order.
func (s *windowSet) snapshot(ruleID string) []windowPoint {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	w, exists := s.windows[ruleID]
	if !exists {
		return nil
	}

	out := make([]windowPoint, len(w.points))
	copy(out, w.points)

	return out
}

// trendMinPoints is the minimum history before a trend is reported; below it
// the trend is "stable" by definition.
const trendMinPoints = 10

// trendThreshold is the relative change between window halves that separates
// stable from improving/degrading.
const trendThreshold = 0.10

// trend classifies the execution-time direction by comparing the mean of the
// first half of the window against the second half.
func trend(points []windowPoint) Trend {
	if len(points) < trendMinPoints {
		return TrendStable
	}

	half := len(points) / 2
	firstMean := meanDuration(points[:half])
	secondMean := meanDuration(points[half:])

	if firstMean == 0 {
		return TrendStable
	}

	change := (secondMean - firstMean) / firstMean

	switch {
	case change > trendThreshold:
		return TrendDegrading
	case change < -trendThreshold:
		return TrendImproving
	default:
		return TrendStable
	}
}

func meanDuration(points []windowPoint) float64 {
	if len(points) == 0 {
		return 0
	}

	var sum float64
	for _, p := range points {
		sum += p.durationMs
	}

	return sum / float64(len(points))
}
