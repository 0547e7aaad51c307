package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Service is the performance analytics component. It owns the per-rule
// rolling windows and the derived-metrics cache; the store remains the
// source of truth and recovers the service from in-process state loss.
//
// Construct via NewService and share one instance; all methods are safe for
// concurrent use.
type Service struct {
	store  storage.Store
	cache  MetricsCache
	window *windowSet
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an analytics service. A nil cache gets the default
// bounded in-memory cache.
func NewService(store storage.Store, cache MetricsCache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NewInMemoryMetricsCache(DefaultCacheTTL, DefaultCacheCapacity)
	}

	return &Service{
		store:  store,
		cache:  cache,
		window: newWindowSet(),
		logger: logger,
		now:    time.Now,
	}
}

// RecordExecution appends an execution record and updates the rule's rolling
// window. Persistence failures are logged and tolerated: telemetry loss is
// preferred over disrupting the execution path, so the caller never blocks on
// the store. Only a validation failure (a caller bug) returns an error.
func (s *Service) RecordExecution(ctx context.Context, record *storage.ExecutionRecord) error {
	if record != nil && record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}

	if err := record.Validate(); err != nil {
		return err
	}

	s.window.append(record.RuleID, windowPoint{
		at:         record.Timestamp,
		durationMs: record.ExecutionTimeMs,
		success:    record.Success,
		triggered:  record.Triggered,
	})

	if err := s.store.AppendExecutionRecord(ctx, record); err != nil {
		s.logger.Warn("Execution record not persisted, continuing",
			slog.String("rule_id", record.RuleID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// GetMetrics returns the aggregate metrics for one rule over a canonical
// window. Results are cached per (rule, window) for the cache TTL. With zero
// matching records the well-defined zero aggregate is returned; if the store
// is unavailable the zero aggregate is returned with Degraded set, and the
// degraded result is not cached.
func (s *Service) GetMetrics(ctx context.Context, ruleID string, timeRange TimeRange) RuleMetrics {
	key := cacheKey(ruleID, timeRange)

	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	now := s.now()

	records, err := s.store.QueryExecutionRecords(ctx, storage.ExecutionQuery{
		RuleID: ruleID,
		Since:  now.Add(-timeRange.Duration()),
	})
	if err != nil {
		s.logger.Warn("Metrics read degraded to zero values",
			slog.String("rule_id", ruleID),
			slog.String("time_range", string(timeRange)),
			slog.String("error", err.Error()),
		)

		degraded := zeroMetrics(ruleID, timeRange, now)
		degraded.Degraded = true

		return degraded
	}

	metrics := computeMetrics(ruleID, timeRange, records, now)
	s.cache.Set(key, metrics)

	return metrics
}

// GetAllRulesMetrics groups a user's execution records by rule, computes
// per-rule metrics, and derives a summary (fastest, slowest, most reliable,
// totals). Summary ties are broken by rule ID ordering.
func (s *Service) GetAllRulesMetrics(ctx context.Context, userID string, timeRange TimeRange) UserMetrics {
	now := s.now()

	result := UserMetrics{
		UserID:    userID,
		TimeRange: timeRange,
		Rules:     make(map[string]RuleMetrics),
	}

	records, err := s.store.QueryExecutionRecords(ctx, storage.ExecutionQuery{
		UserID: userID,
		Since:  now.Add(-timeRange.Duration()),
	})
	if err != nil {
		s.logger.Warn("User metrics read degraded to zero values",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		result.Degraded = true

		return result
	}

	byRule := make(map[string][]storage.ExecutionRecord)
	for _, record := range records {
		byRule[record.RuleID] = append(byRule[record.RuleID], record)
	}

	for ruleID, ruleRecords := range byRule {
		result.Rules[ruleID] = computeMetrics(ruleID, timeRange, ruleRecords, now)
	}

	result.Summary = summarize(result.Rules)

	return result
}

// GetRuleEfficiencyScore returns the 0–100 composite efficiency score for a
// rule, computed over the 30-day window. Zero executions score 0.
func (s *Service) GetRuleEfficiencyScore(ctx context.Context, ruleID string) float64 {
	return efficiencyScore(s.GetMetrics(ctx, ruleID, Range30d))
}

// GetSlowPerformingRules returns the user's rules whose average execution
// time over the 7-day window exceeds thresholdMs, slowest first.
func (s *Service) GetSlowPerformingRules(ctx context.Context, userID string, thresholdMs float64) []SlowRule {
	userMetrics := s.GetAllRulesMetrics(ctx, userID, Range7d)

	slow := make([]SlowRule, 0)

	for ruleID, metrics := range userMetrics.Rules {
		if metrics.AverageExecutionTimeMs > thresholdMs {
			slow = append(slow, SlowRule{
				RuleID:                 ruleID,
				AverageExecutionTimeMs: metrics.AverageExecutionTimeMs,
				TotalExecutions:        metrics.TotalExecutions,
			})
		}
	}

	sort.Slice(slow, func(i, j int) bool {
		if slow[i].AverageExecutionTimeMs != slow[j].AverageExecutionTimeMs {
			return slow[i].AverageExecutionTimeMs > slow[j].AverageExecutionTimeMs
		}

		return slow[i].RuleID < slow[j].RuleID
	})

	return slow
}

// ExecutionTrend classifies the recent execution-time direction for a rule
// from the in-process rolling window.
func (s *Service) ExecutionTrend(ruleID string) Trend {
	return trend(s.window.snapshot(ruleID))
}

// WindowSize reports the current rolling-window length for a rule.
// Used by tests to verify the bounded history.
func (s *Service) WindowSize(ruleID string) int {
	return len(s.window.snapshot(ruleID))
}

func cacheKey(ruleID string, timeRange TimeRange) string {
	return ruleID + "|" + string(timeRange)
}

// summarize derives the cross-rule summary with deterministic tie-breaks:
// candidates are visited in rule ID order, and a later rule must strictly
// beat the current best to replace it.
func summarize(rules map[string]RuleMetrics) MetricsSummary {
	summary := MetricsSummary{TotalRules: len(rules)}

	if len(rules) == 0 {
		return summary
	}

	ruleIDs := make([]string, 0, len(rules))
	for ruleID := range rules {
		ruleIDs = append(ruleIDs, ruleID)
	}

	sort.Strings(ruleIDs)

	var (
		successTotal int
		first        = true
		fastest      float64
		slowest      float64
		reliable     float64
	)

	for _, ruleID := range ruleIDs {
		metrics := rules[ruleID]
		summary.TotalExecutions += metrics.TotalExecutions
		successTotal += metrics.SuccessCount

		if first {
			summary.FastestRuleID = ruleID
			summary.SlowestRuleID = ruleID
			summary.MostReliableRuleID = ruleID
			fastest = metrics.AverageExecutionTimeMs
			slowest = metrics.AverageExecutionTimeMs
			reliable = metrics.SuccessRate
			first = false

			continue
		}

		if metrics.AverageExecutionTimeMs < fastest {
			fastest = metrics.AverageExecutionTimeMs
			summary.FastestRuleID = ruleID
		}

		if metrics.AverageExecutionTimeMs > slowest {
			slowest = metrics.AverageExecutionTimeMs
			summary.SlowestRuleID = ruleID
		}

		if metrics.SuccessRate > reliable {
			reliable = metrics.SuccessRate
			summary.MostReliableRuleID = ruleID
		}
	}

	if summary.TotalExecutions > 0 {
		summary.OverallSuccessRate = float64(successTotal) / float64(summary.TotalExecutions) * percentageScale
	}

	return summary
}
