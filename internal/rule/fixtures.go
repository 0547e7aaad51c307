package rule

import (
	"strconv"
	"strings"
)

// nonMatchingText is guaranteed not to satisfy equals/contains/matches
// conditions generated from real rule values.
const nonMatchingText = "\x00fixture-no-match\x00"

// MatchingFixture synthesizes an email fact map that satisfies every
// condition of the rule. Used by the unit test generator for the
// "condition matches" case.
func MatchingFixture(r *Rule) map[string]any {
	email := make(map[string]any, len(r.Conditions))

	for _, cond := range r.Conditions {
		switch cond.Operator {
		case OpEquals:
			email[cond.Field] = cond.Value
		case OpContains:
			email[cond.Field] = "re: " + cond.Value + " (see below)"
		case OpMatches:
			// A regex stripped of its metacharacters matches itself for the
			// common literal-with-wildcards patterns rules actually use.
			email[cond.Field] = stripRegexMeta(cond.Value)
		case OpGreaterThan:
			email[cond.Field] = parseNumber(cond.Value) + 1
		case OpLessThan:
			email[cond.Field] = parseNumber(cond.Value) - 1
		}
	}

	return email
}

// NonMatchingFixture synthesizes an email fact map that violates the rule's
// first condition, and therefore the whole conjunction. Used by the unit test
// generator for the "condition does not match" case.
func NonMatchingFixture(r *Rule) map[string]any {
	email := MatchingFixture(r)

	if len(r.Conditions) == 0 {
		return email
	}

	first := r.Conditions[0]

	switch first.Operator {
	case OpEquals, OpContains, OpMatches:
		email[first.Field] = nonMatchingText
	case OpGreaterThan:
		email[first.Field] = parseNumber(first.Value) - 1
	case OpLessThan:
		email[first.Field] = parseNumber(first.Value) + 1
	}

	return email
}

func parseNumber(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}

	return f
}

func stripRegexMeta(pattern string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '+', '?', '^', '$', '(', ')', '[', ']', '{', '}', '|', '\\':
			return -1
		default:
			return r
		}
	}, pattern)
}
