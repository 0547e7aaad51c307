package impact

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ruleiq-io/ruleiq/internal/rule"
)

// ClassifyChange determines the change type and the set of changed fields
// between two rule versions. Fields are reported as dotted JSON paths
// (e.g. "conditions.0.value", "action.kind") sorted lexically.
//
// A nil old rule is a creation (addition), a nil new rule is a deletion
// (removal). Between two non-nil versions the diff decides: a change is an
// addition when every changed path exists only in the new version, a removal
// when every changed path exists only in the old version, and a modification
// otherwise. Timestamps are excluded from the comparison: touching updatedAt
// alone is not a change.
func ClassifyChange(oldRule, newRule *rule.Rule) (ChangeType, []string) {
	switch {
	case oldRule == nil && newRule == nil:
		return ChangeNone, nil
	case oldRule == nil:
		return ChangeAddition, flattenedFields(newRule)
	case newRule == nil:
		return ChangeRemoval, flattenedFields(oldRule)
	}

	if cmp.Equal(stripTimestamps(oldRule), stripTimestamps(newRule)) {
		return ChangeNone, nil
	}

	added, removed, modified := diffFields(oldRule, newRule)

	fields := make([]string, 0, len(added)+len(removed)+len(modified))
	fields = append(fields, added...)
	fields = append(fields, removed...)
	fields = append(fields, modified...)
	sort.Strings(fields)

	switch {
	case len(fields) == 0:
		return ChangeNone, nil
	case len(modified) == 0 && len(removed) == 0:
		return ChangeAddition, fields
	case len(modified) == 0 && len(added) == 0:
		return ChangeRemoval, fields
	default:
		return ChangeModification, fields
	}
}

func stripTimestamps(r *rule.Rule) *rule.Rule {
	clone := r.Clone()
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}

	return clone
}

// diffFields diffs the flattened JSON representations of both versions and
// buckets each changed path: present only in the new version (added), present
// only in the old version (removed), or present in both with different values
// (modified).
func diffFields(oldRule, newRule *rule.Rule) (added, removed, modified []string) {
	oldFlat := flatten(stripTimestamps(oldRule))
	newFlat := flatten(stripTimestamps(newRule))

	for path, oldVal := range oldFlat {
		newVal, ok := newFlat[path]

		switch {
		case !ok:
			removed = append(removed, path)
		case oldVal != newVal:
			modified = append(modified, path)
		}
	}

	for path := range newFlat {
		if _, ok := oldFlat[path]; !ok {
			added = append(added, path)
		}
	}

	return added, removed, modified
}

func flattenedFields(r *rule.Rule) []string {
	flat := flatten(stripTimestamps(r))

	fields := make([]string, 0, len(flat))
	for path := range flat {
		fields = append(fields, path)
	}

	sort.Strings(fields)

	return fields
}

// flatten marshals a rule through JSON and flattens the result into
// dotted-path leaf values. Scalars are rendered as strings so comparison
// stays type-insensitive across the JSON round trip.
func flatten(r *rule.Rule) map[string]string {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil
	}

	flat := make(map[string]string)
	flattenInto(flat, "", tree)

	return flat
}

func flattenInto(flat map[string]string, prefix string, node any) {
	switch typed := node.(type) {
	case map[string]any:
		for key, child := range typed {
			flattenInto(flat, joinPath(prefix, key), child)
		}
	case []any:
		for i, child := range typed {
			flattenInto(flat, joinPath(prefix, fmt.Sprintf("%d", i)), child)
		}
	default:
		flat[prefix] = fmt.Sprintf("%v", typed)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}
