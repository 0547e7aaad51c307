package rule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// simulatorCostLimit bounds CEL evaluation cost so a pathological rule
// cannot stall a test batch.
const simulatorCostLimit = 1_000_000

type (
	// Outcome is the result of simulating one rule against one email fixture.
	// It is the unit compared by regression tests: {Triggered, Action, Target}.
	Outcome struct {
		Triggered  bool       `json:"triggered"`
		Action     ActionKind `json:"action"`
		Target     string     `json:"target,omitempty"`
		DurationMs float64    `json:"durationMs"`
		Error      string     `json:"error,omitempty"`
	}

	// Simulator evaluates rule conditions against email fact maps using
	// compiled CEL programs. Compilation results are cached per expression;
	// the cache is safe for concurrent use.
	Simulator struct {
		env      *cel.Env
		programs map[string]cel.Program
		mu       sync.RWMutex
	}
)

// NewSimulator creates a simulator with a CEL environment declaring the
// email fact map as a dynamic variable.
func NewSimulator() (*Simulator, error) {
	env, err := cel.NewEnv(
		cel.Variable("email", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Simulator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Execute simulates the rule against the given email fact map and returns the
// outcome. Evaluation errors do not fail the call: they surface as a
// non-triggered outcome with the error message attached, so a malformed
// fixture degrades to "did not trigger" instead of aborting a test batch.
func (s *Simulator) Execute(ctx context.Context, r *Rule, email map[string]any) (Outcome, error) {
	if err := r.Validate(); err != nil {
		return Outcome{}, err
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	expression := BuildExpression(r)

	prog, err := s.program(expression)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()

	if email == nil {
		email = map[string]any{}
	}

	out, _, err := prog.Eval(map[string]any{"email": email})

	outcome := Outcome{
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	if err != nil {
		// Missing fields and type mismatches evaluate to errors in CEL;
		// treat them as a non-match with the cause recorded.
		outcome.Error = err.Error()

		return outcome, nil
	}

	if matched, ok := out.Value().(bool); ok && matched {
		outcome.Triggered = true
		outcome.Action = r.Action.Kind
		outcome.Target = r.Action.Target
	}

	return outcome, nil
}

// program returns a compiled program for the expression, compiling and
// caching on first use.
func (s *Simulator) program(expression string) (cel.Program, error) {
	s.mu.RLock()
	prog, exists := s.programs[expression]
	s.mu.RUnlock()

	if exists {
		return prog, nil
	}

	ast, issues := s.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := s.env.Program(ast, cel.CostLimit(simulatorCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	s.mu.Lock()
	s.programs[expression] = prog
	s.mu.Unlock()

	return prog, nil
}

// BuildExpression translates a rule's conditions into a CEL expression over
// the email fact map. Conditions are conjunctive: every condition must hold
// for the rule to trigger.
func BuildExpression(r *Rule) string {
	terms := make([]string, 0, len(r.Conditions))

	for _, cond := range r.Conditions {
		terms = append(terms, conditionTerm(cond))
	}

	return strings.Join(terms, " && ")
}

func conditionTerm(cond Condition) string {
	field := fmt.Sprintf("email[%s]", strconv.Quote(cond.Field))

	switch cond.Operator {
	case OpEquals:
		return fmt.Sprintf("%s == %s", field, strconv.Quote(cond.Value))
	case OpContains:
		return fmt.Sprintf("%s.contains(%s)", field, strconv.Quote(cond.Value))
	case OpMatches:
		return fmt.Sprintf("%s.matches(%s)", field, strconv.Quote(cond.Value))
	case OpGreaterThan, OpLessThan:
		f, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		if err != nil {
			// Non-numeric thresholds can never be satisfied.
			return "false"
		}

		op := ">"
		if cond.Operator == OpLessThan {
			op = "<"
		}

		return fmt.Sprintf("double(%s) %s %s", field, op, strconv.FormatFloat(f, 'f', -1, 64))
	default:
		// Validate rejects unknown operators before expressions are built.
		return "false"
	}
}
