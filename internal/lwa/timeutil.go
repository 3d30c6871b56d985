package lwa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the wire format of every start/end value.
const TimeLayout = "2006-01-02T15:04:05"

// PreviewTimeOfDay is the fixed time-of-day of the per-day preview request.
const PreviewTimeOfDay = "12:00:00"

// ErrBadTime is returned for timestamps that match none of the accepted layouts.
var ErrBadTime = errors.New("invalid timestamp")

var acceptedLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-like timestamp as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadTime)
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, raw)
}

// FormatTime renders t in the wire format, truncated to the second.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DefaultRange is the range the page starts with: the last seven days.
func DefaultRange(now time.Time) (start, end string) {
	now = now.UTC().Truncate(time.Second)
	return FormatTime(now.AddDate(0, 0, -7)), FormatTime(now)
}

// ShiftedStart takes the calendar date of base, moves it by offsetDays in UTC
// and pins the time of day to noon.
func ShiftedStart(base string, offsetDays int) (string, error) {
	base = strings.TrimSpace(base)
	if len(base) < 10 {
		return "", fmt.Errorf("%w: %q", ErrBadTime, base)
	}
	day, err := time.ParseInLocation("2006-01-02", base[:10], time.UTC)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTime, base)
	}
	return day.AddDate(0, 0, offsetDays).Format("2006-01-02") + "T" + PreviewTimeOfDay, nil
}

// ParseCadence reads the optional sampling interval. A bare number is seconds.
func ParseCadence(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid cadence %q", raw)
		}
		d = parsed
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid cadence %q: negative", raw)
	}
	return d, nil
}

// Record is one indexed file and the time it is sorted and sampled by.
type Record struct {
	Path    string    `json:"path"`
	ObsTime time.Time `json:"obs_time"`
}

// Decimate keeps a record only once cadence has elapsed since the previously
// kept record. Input order is preserved; a zero cadence keeps everything.
func Decimate(records []Record, cadence time.Duration) []Record {
	if cadence <= 0 || len(records) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	var last time.Time
	for i, r := range records {
		if i == 0 || r.ObsTime.Sub(last) >= cadence {
			out = append(out, r)
			last = r.ObsTime
		}
	}
	return out
}

// Paths projects records to their file paths.
func Paths(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Path)
	}
	return out
}

// FileLists holds the query result for each kind, ordered by time.
type FileLists map[Kind][]Record
