package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.UTC().Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v", got.Unix())
    }
}

func TestParseTimeDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    got := ParseTimeDefault("", def)
    if !got.Equal(def) {
        t.Fatalf("expected default")
    }
}
func TestCycleDate(t *testing.T) {
    ts := time.Date(2025, 3, 7, 16, 30, 0, 0, time.UTC)
    if got := CycleDate(ts); got != "2025-03-07" {
        t.Fatalf("unexpected cycle date %q", got)
    }
    if !ValidCycleDate("2025-03-07") {
        t.Fatalf("expected valid")
    }
    if ValidCycleDate("03/07/2025") {
        t.Fatalf("expected invalid")
    }
}

func TestNextRunAt(t *testing.T) {
    now := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
    next := NextRunAt(now, "16:30")
    if next.Day() != 7 || next.Hour() != 16 || next.Minute() != 30 {
        t.Fatalf("unexpected next %v", next)
    }
    // already past today's slot rolls to tomorrow
    next = NextRunAt(now, "09:00")
    if next.Day() != 8 || next.Hour() != 9 {
        t.Fatalf("unexpected rollover %v", next)
    }
}
