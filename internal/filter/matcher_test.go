package filter

import (
	"testing"

	"github.com/okovacs/pulseboard/internal/dataset"
)

func cond(field string, op dataset.Operator, value any) dataset.FilterCondition {
	return dataset.FilterCondition{Field: field, Operator: op, Value: value}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		record     dataset.Record
		conditions []dataset.FilterCondition
		want       bool
	}{
		{
			name:       "empty conditions match all",
			record:     dataset.Record{"status": "completed"},
			conditions: nil,
			want:       true,
		},
		{
			name:       "equals hit",
			record:     dataset.Record{"status": "completed"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpEquals, "completed")},
			want:       true,
		},
		{
			name:       "equals miss",
			record:     dataset.Record{"status": "no_show"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpEquals, "completed")},
			want:       false,
		},
		{
			name:   "and semantics require every condition",
			record: dataset.Record{"status": "completed", "closer": "dana"},
			conditions: []dataset.FilterCondition{
				cond("status", dataset.OpEquals, "completed"),
				cond("closer", dataset.OpEquals, "lee"),
			},
			want: false,
		},
		{
			name:       "not equals hit",
			record:     dataset.Record{"status": "completed"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpNotEquals, "refunded")},
			want:       true,
		},
		{
			name:       "in hit",
			record:     dataset.Record{"status": "no_show"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpIn, []any{"completed", "no_show"})},
			want:       true,
		},
		{
			name:       "in miss",
			record:     dataset.Record{"status": "canceled"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpIn, []any{"completed", "no_show"})},
			want:       false,
		},
		{
			name:       "in with scalar degenerates to equals",
			record:     dataset.Record{"status": "completed"},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpIn, "completed")},
			want:       true,
		},
		{
			name:       "numeric value compares canonically",
			record:     dataset.Record{"amount": 100.0},
			conditions: []dataset.FilterCondition{cond("amount", dataset.OpEquals, "100")},
			want:       true,
		},
		{
			name:       "in coerces numeric members",
			record:     dataset.Record{"tier": 2.0},
			conditions: []dataset.FilterCondition{cond("tier", dataset.OpIn, []any{1.0, 2.0})},
			want:       true,
		},
		{
			name:       "boolean compares as boolean",
			record:     dataset.Record{"active": true},
			conditions: []dataset.FilterCondition{cond("active", dataset.OpEquals, "true")},
			want:       true,
		},
		{
			name:       "missing field never equals a value",
			record:     dataset.Record{},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpEquals, "completed")},
			want:       false,
		},
		{
			name:       "missing field equals nil",
			record:     dataset.Record{},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpEquals, nil)},
			want:       true,
		},
		{
			name:       "nil field equals nil",
			record:     dataset.Record{"status": nil},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpEquals, nil)},
			want:       true,
		},
		{
			name:       "nil field not in any list",
			record:     dataset.Record{"status": nil},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpIn, []any{"completed"})},
			want:       false,
		},
		{
			name:       "not equals on missing field",
			record:     dataset.Record{},
			conditions: []dataset.FilterCondition{cond("status", dataset.OpNotEquals, "completed")},
			want:       true,
		},
		{
			name:       "unknown operator matches nothing",
			record:     dataset.Record{"status": "completed"},
			conditions: []dataset.FilterCondition{cond("status", dataset.Operator("regex"), ".*")},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.record, tt.conditions); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	records := []dataset.Record{
		{"status": "completed"},
		{"status": "no_show"},
		{"status": "completed"},
	}

	matched := Apply(records, []dataset.FilterCondition{cond("status", dataset.OpEquals, "completed")})
	if len(matched) != 2 {
		t.Errorf("Apply matched %d records, want 2", len(matched))
	}

	all := Apply(records, nil)
	if len(all) != 3 {
		t.Errorf("Apply with no conditions matched %d records, want 3", len(all))
	}
}
