// Package timestamp provides standardized UTC nanosecond timestamp handling.
//
// Sensor packets carry timestamps as int64 nanoseconds since the Unix epoch
// (UTC); this package is the single conversion point so that alignment and
// provenance code never re-derive epoch math.
//
// Zero Value Semantics:
//   - A timestamp value of 0 means "not set" or "unknown"
//   - Functions handle zero values gracefully, returning appropriate defaults
package timestamp

import "time"

// Now returns the current time as Unix nanoseconds.
func Now() int64 {
	return time.Now().UnixNano()
}

// ToUnixNs converts a time.Time to Unix nanoseconds.
func ToUnixNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// FromUnixNs converts Unix nanoseconds to time.Time.
// Returns zero time if the timestamp is 0.
func FromUnixNs(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Format converts Unix nanoseconds to an RFC3339Nano string for display.
// Returns empty string if the timestamp is 0.
func Format(ns int64) string {
	if ns == 0 {
		return ""
	}
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// Parse converts an RFC3339 string to Unix nanoseconds.
// Returns 0 for empty or unparseable input.
func Parse(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// Age returns the elapsed time since the given timestamp.
// Returns 0 for a zero timestamp.
func Age(ns int64) time.Duration {
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// SampleIndex returns the index of the sample containing ts on a timeline
// starting at origin with the given sample rate. Returns -1 if ts precedes
// origin or the rate is not positive.
func SampleIndex(ts, origin int64, rateHz uint32) int64 {
	if rateHz == 0 || ts < origin {
		return -1
	}
	return (ts - origin) * int64(rateHz) / int64(time.Second)
}
