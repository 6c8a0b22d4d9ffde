// Package filter evaluates field/operator/value condition lists against
// records. It is the shared predicate layer under the metric aggregator and
// ad-hoc dataset widget filtering.
package filter

import (
	"github.com/okovacs/pulseboard/internal/dataset"
)

// Matches reports whether a record satisfies every condition in the list.
// An empty list matches all records. A missing field compares as not-equal
// to any concrete value. Pure function of its inputs.
func Matches(record dataset.Record, conditions []dataset.FilterCondition) bool {
	for _, cond := range conditions {
		if !matchCondition(record, cond) {
			return false
		}
	}
	return true
}

// Apply returns the subset of records matching all conditions
func Apply(records []dataset.Record, conditions []dataset.FilterCondition) []dataset.Record {
	if len(conditions) == 0 {
		return records
	}

	matched := make([]dataset.Record, 0, len(records))
	for _, rec := range records {
		if Matches(rec, conditions) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func matchCondition(record dataset.Record, cond dataset.FilterCondition) bool {
	value, present := record[cond.Field]

	switch cond.Operator {
	case dataset.OpEquals:
		return equals(value, present, cond.Value)
	case dataset.OpNotEquals:
		return !equals(value, present, cond.Value)
	case dataset.OpIn:
		return in(value, present, cond.Value)
	default:
		return false
	}
}

// equals compares after coercing both sides to strings, except boolean-typed
// values which compare as booleans.
func equals(value any, present bool, want any) bool {
	if !present || value == nil {
		return want == nil
	}

	if isBool(value) || isBool(want) {
		got, err1 := dataset.CoerceBool(value)
		expected, err2 := dataset.CoerceBool(want)
		if err1 != nil || err2 != nil {
			return false
		}
		return got == expected
	}

	return dataset.CoerceString(value) == dataset.CoerceString(want)
}

// in checks string-coerced membership in the condition's value list
func in(value any, present bool, want any) bool {
	if !present || value == nil {
		return false
	}

	members, ok := want.([]any)
	if !ok {
		// a scalar "in" degenerates to equals
		return equals(value, present, want)
	}

	got := dataset.CoerceString(value)
	for _, m := range members {
		if dataset.CoerceString(m) == got {
			return true
		}
	}
	return false
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}
