package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var windowPattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// ParseWindow parses bounded time-scope strings like "5m", "12h", "30d".
// The literal "all" (and the empty string) means unbounded and returns 0.
func ParseWindow(s string) (time.Duration, error) {
	if s == "" || s == "all" {
		return 0, nil
	}

	matches := windowPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid window format: %s", s)
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window value: %s", s)
	}

	unit := matches[2]
	switch unit {
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown window unit: %s", unit)
	}
}
