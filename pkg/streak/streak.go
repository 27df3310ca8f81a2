// Package streak computes activity streaks from a sparse day -> count calendar.
package streak

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Calendar maps a unix timestamp (seconds, day granularity) to an activity count.
// Days without activity are absent.
type Calendar map[int64]int

// Result holds both streak values.
type Result struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Compute returns the longest run over cal. The current streak is taken from upstream as-is,
// since only the upstream knows which day is "today" for the user.
func Compute(cal Calendar, current int) Result {
	days := make([]int64, 0, len(cal))
	for ts, n := range cal {
		if n > 0 {
			days = append(days, ts)
		}
	}
	return Result{Current: current, Longest: Longest(days)}
}

// Longest returns the length of the longest run of consecutive days in timestamps.
// Input order does not matter. Timestamps falling on the same UTC day count once.
func Longest(timestamps []int64) int {
	if len(timestamps) == 0 {
		return 0
	}

	days := make([]int64, len(timestamps))
	for i, ts := range timestamps {
		days[i] = dayNumber(ts)
	}
	slices.Sort(days)
	days = slices.Compact(days)

	longest, run := 0, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] == 1 {
			run++
			continue
		}
		longest = max(longest, run)
		run = 1
	}
	// The final run ends at the last entry and has not been counted yet.
	return max(longest, run)
}

// dayNumber floors ts to a UTC day index, rounding toward negative infinity.
func dayNumber(ts int64) int64 {
	d := ts / secondsPerDay
	if ts%secondsPerDay < 0 {
		d--
	}
	return d
}

// ParseCalendar accepts the upstream calendar either as an object or as a JSON-encoded string
// of an object, e.g. `{"1700006400": 3}`. Keys must be unix timestamps; values are counts.
// A nil or empty input yields an empty calendar.
func ParseCalendar(v any) (Calendar, error) {
	switch c := v.(type) {
	case nil:
		return Calendar{}, nil
	case string:
		c = strings.TrimSpace(c)
		if c == "" {
			return Calendar{}, nil
		}
		var m map[string]json.Number
		if err := json.Unmarshal([]byte(c), &m); err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		cal := make(Calendar, len(m))
		for k, n := range m {
			if err := cal.add(k, n); err != nil {
				return nil, err
			}
		}
		return cal, nil
	case map[string]any:
		cal := make(Calendar, len(c))
		for k, n := range c {
			if err := cal.add(k, n); err != nil {
				return nil, err
			}
		}
		return cal, nil
	default:
		return nil, fmt.Errorf("unsupported calendar type %T", v)
	}
}

func (c Calendar) add(key string, count any) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return fmt.Errorf("calendar key %q: %w", key, err)
	}
	var n int64
	switch v := count.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("calendar value for %q: %w", key, err)
		}
		n = int64(f)
	case float64:
		n = int64(v)
	default:
		return fmt.Errorf("calendar value for %q has type %T", key, count)
	}
	c[ts] = int(n)
	return nil
}

// Day returns the calendar key for t (midnight UTC).
func Day(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
