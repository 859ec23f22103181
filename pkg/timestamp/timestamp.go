// Package timestamp normalizes the timestamp shapes found in log fields.
//
// Logs carry event time as native timestamps, RFC3339 strings or Unix
// epoch numbers in seconds or milliseconds. Parse and FromValue accept all
// of them:
//
//	t, ok := timestamp.Parse("2023-01-15T12:30:45Z")
//	t, ok = timestamp.Parse(int64(1673784645))    // seconds
//	t, ok = timestamp.Parse(int64(1673784645123)) // milliseconds
//
// Zero and unparsable inputs report false.
package timestamp

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/c360/eventflow/value"
)

// msThreshold separates epoch seconds from epoch milliseconds: 1e12
// seconds is far in the future, 1e12 milliseconds is September 2001.
const msThreshold = 1e12

// FromUnix interprets n as epoch milliseconds when it is above 1e12,
// else as epoch seconds. Zero is the zero time.
func FromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	if n > msThreshold || n < -msThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// FromUnixFloat is FromUnix for fractional epochs.
func FromUnixFloat(f float64) (time.Time, bool) {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if math.Abs(f) > msThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// Parse converts a time.Time, an epoch number or a string holding either
// RFC3339 or an epoch number.
func Parse(input any) (time.Time, bool) {
	switch v := input.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case int64:
		return FromUnix(v), v != 0
	case int:
		return FromUnix(int64(v)), v != 0
	case float64:
		return FromUnixFloat(v)
	case string:
		return parseString(v)
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromUnix(n), n != 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromUnixFloat(f)
	}
	return time.Time{}, false
}

// FromValue reads a timestamp from a Timestamp, Integer, Float or Bytes
// value.
func FromValue(v value.Value) (time.Time, bool) {
	switch v.Kind() {
	case value.KindTimestamp:
		return v.AsTimestamp()
	case value.KindInteger:
		n, _ := v.AsInteger()
		return Parse(n)
	case value.KindFloat:
		f, _ := v.AsFloat()
		return Parse(f)
	case value.KindBytes:
		s, _ := v.AsString()
		return Parse(s)
	default:
		return time.Time{}, false
	}
}

// Format renders t as RFC3339 with milliseconds in UTC, or "" for the
// zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
