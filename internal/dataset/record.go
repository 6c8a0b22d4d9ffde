package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// Record is one flat data row: field slug -> scalar value or nil.
// Records are immutable inputs to the engines; derived values are returned
// as new scalars, never written back into the map.
type Record map[string]any

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CoerceString converts a scalar to its canonical string form.
// Numbers render without a trailing fractional zero so 100.0 and "100"
// compare equal.
func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CoerceNumber converts a scalar to float64
func CoerceNumber(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

// CoerceBool converts a scalar to bool
func CoerceBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", val)
		}
		return b, nil
	case float64:
		return val != 0, nil
	case int:
		return val != 0, nil
	default:
		return false, fmt.Errorf("not a boolean: %v (%T)", v, v)
	}
}

// dateLayouts are tried in order when parsing date strings
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a scalar as a date. Accepted forms: ISO-8601 strings and
// Unix-epoch-like numeric values (seconds, or milliseconds when the magnitude
// is too large for seconds).
func ParseDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, nil
			}
		}
		if epoch, err := strconv.ParseFloat(val, 64); err == nil {
			return epochToTime(epoch), nil
		}
		return time.Time{}, fmt.Errorf("unparsable date: %q", val)
	case float64:
		return epochToTime(val), nil
	case int:
		return epochToTime(float64(val)), nil
	case int64:
		return epochToTime(float64(val)), nil
	default:
		return time.Time{}, fmt.Errorf("unparsable date: %v (%T)", v, v)
	}
}

// epochToTime treats values past the year-9999 second range as milliseconds
func epochToTime(epoch float64) time.Time {
	const msThreshold = 1e12
	if epoch >= msThreshold || epoch <= -msThreshold {
		return time.UnixMilli(int64(epoch)).UTC()
	}
	return time.Unix(int64(epoch), 0).UTC()
}
