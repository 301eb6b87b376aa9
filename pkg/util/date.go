package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date and unix seconds. Returns
// (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
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

// TradingDay truncates t to midnight UTC of its calendar day.
func TradingDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextBusinessDays returns the n weekdays strictly after from. Exchange holidays
// are not modelled.
func NextBusinessDays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := TradingDay(from)
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if !IsWeekend(d) {
			out = append(out, d)
		}
	}
	return out
}

// HistoryWindow returns [now-days, now] aligned to trading days.
func HistoryWindow(now time.Time, days int) (time.Time, time.Time) {
	to := TradingDay(now)
	return to.AddDate(0, 0, -days), to
}
