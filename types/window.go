package types

import (
	"fmt"
	"strings"
	"time"
)

// Window is a time granularity at which usage is counted.
type Window string

// Window granularities, finest first. Minute counts live only in the fast
// counter store; hour and day counts are persisted durably.
const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Valid reports whether w is a known window granularity.
func (w Window) Valid() bool {
	switch w {
	case WindowMinute, WindowHour, WindowDay:
		return true
	}
	return false
}

// Duration returns the nominal length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return 0
}

// Truncate returns the UTC start of the window containing t.
func (w Window) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case WindowMinute:
		return t.Truncate(time.Minute)
	case WindowHour:
		return t.Truncate(time.Hour)
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Minute bucket keys use a compact timestamp so that all buckets of one hour
// share a scannable prefix: "{scope}:{feature}:{YYYYMMDDHHmm}".
const minuteStampLayout = "200601021504"

// MinuteKey returns the fast-counter-store key for the minute bucket
// containing t.
func MinuteKey(scopeID, feature string, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s", scopeID, feature, t.UTC().Format(minuteStampLayout))
}

// HourPattern returns the scan pattern matching every minute key of the hour
// containing t, across all scopes and features.
func HourPattern(t time.Time) string {
	return fmt.Sprintf("*:*:%s[0-5][0-9]", t.UTC().Format("2006010215"))
}

// ParseMinuteKey splits a minute bucket key back into its scope, feature and
// bucket start. Feature keys may themselves contain colons (e.g. "ai:tokens"),
// so the scope is taken from the first segment and the timestamp from the last.
func ParseMinuteKey(key string) (scopeID, feature string, at time.Time, err error) {
	first := strings.Index(key, ":")
	last := strings.LastIndex(key, ":")
	if first < 0 || first == last {
		return "", "", time.Time{}, fmt.Errorf("types: malformed minute key %q", key)
	}

	at, err = time.ParseInLocation(minuteStampLayout, key[last+1:], time.UTC)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("types: malformed minute key %q: %w", key, err)
	}

	return key[:first], key[first+1 : last], at, nil
}
