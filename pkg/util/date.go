package util

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// unixMillisFloor separates unix seconds from unix milliseconds. Second
// timestamps stay below it until the year 33658.
const unixMillisFloor = 1_000_000_000_000

// ParseTime accepts RFC3339 (with or without fraction), unix seconds and
// unix milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return FromUnix(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return FromUnix(int64(f)), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FromUnix reads n as seconds or milliseconds depending on magnitude.
func FromUnix(n int64) time.Time {
	if n >= unixMillisFloor {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// ParseJSONTime reads a JSON string or number timestamp.
func ParseJSONTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTime(s)
	}
	return ParseTime(string(raw))
}
