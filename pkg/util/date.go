package util

import (
    "strconv"
    "time"
)

// CycleDateLayout is the canonical YYYY-MM-DD cycle date format.
const CycleDateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
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

// CycleDate renders t as a cycle date in t's location.
func CycleDate(t time.Time) string {
    return t.Format(CycleDateLayout)
}

// ValidCycleDate reports whether s is a well-formed cycle date.
func ValidCycleDate(s string) bool {
    _, err := time.Parse(CycleDateLayout, s)
    return err == nil
}

// NextRunAt returns the next occurrence of the HH:MM wall-clock time after
// now, in now's location. Invalid specs fall back to midnight.
func NextRunAt(now time.Time, hhmm string) time.Time {
    at, err := time.Parse("15:04", hhmm)
    if err != nil {
        at = time.Time{}
    }
    next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
    if !next.After(now) {
        next = next.Add(24 * time.Hour)
    }
    return next
}
