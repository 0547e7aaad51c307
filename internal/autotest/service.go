package autotest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// DependencyChecker verifies one of a rule's declared external dependencies
// (e.g. the notification or email sink) during integration tests. The
// production implementation consults the platform's notification log.
type DependencyChecker interface {
	CheckDependency(ctx context.Context, ruleID, dependency string) error
}

// noopDependencyChecker passes every check. Used when no checker is wired,
// so integration cases still assert the rule outcome.
type noopDependencyChecker struct{}

func (noopDependencyChecker) CheckDependency(context.Context, string, string) error { return nil }

// simulateFunc runs one rule simulation. Injectable so tests can substitute
// deterministic timings.
type simulateFunc func(ctx context.Context, r *rule.Rule, email map[string]any) (rule.Outcome, error)

// Service generates and executes automated test suites for rules. Safe for
// concurrent use; suite execution state lives in the store and the
// running-tests registry, not in the service.
type Service struct {
	rules     rule.Store
	store     storage.Store
	analytics *analytics.Service
	deps      DependencyChecker
	registry  *Registry
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	simulate  simulateFunc
}

// NewService creates the testing automation service. A nil deps gets a
// checker that passes every dependency check.
func NewService(
	rules rule.Store,
	store storage.Store,
	analyticsSvc *analytics.Service,
	deps DependencyChecker,
	logger *slog.Logger,
) (*Service, error) {
	simulator, err := rule.NewSimulator()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule simulator: %w", err)
	}

	if deps == nil {
		deps = noopDependencyChecker{}
	}

	return &Service{
		rules:     rules,
		store:     store,
		analytics: analyticsSvc,
		deps:      deps,
		registry:  NewRegistry(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		simulate:  simulator.Execute,
	}, nil
}

// GetRunningTests returns a snapshot of in-flight test executions.
func (s *Service) GetRunningTests() []RunningTest {
	return s.registry.GetRunningTests()
}

// CancelTest cancels an in-flight test by ID. Advisory: already-dispatched
// work settles normally, but its context is cancelled and its bookkeeping
// entry removed.
func (s *Service) CancelTest(testID string) error {
	return s.registry.CancelTest(testID)
}
