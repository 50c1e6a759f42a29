package redisclient

import (
	"testing"
	"time"
)

func TestDayKeysSingleDay(t *testing.T) {
	start := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)
	keys := dayKeys(start, start.Add(time.Hour))
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want one day", keys)
	}
	if keys[0] != "lock:bookday:2026-04-14" {
		t.Fatalf("key = %s", keys[0])
	}
}

func TestDayKeysCrossMidnight(t *testing.T) {
	start := time.Date(2026, 4, 14, 23, 30, 0, 0, time.UTC)
	keys := dayKeys(start, start.Add(time.Hour))
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want both days", keys)
	}
	if keys[0] != "lock:bookday:2026-04-14" || keys[1] != "lock:bookday:2026-04-15" {
		t.Fatalf("keys = %v, want sorted day keys", keys)
	}
}

func TestDayKeysEndAtMidnight(t *testing.T) {
	start := time.Date(2026, 4, 14, 23, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	keys := dayKeys(start, end)
	if len(keys) != 1 {
		t.Fatalf("keys = %v, a half-open interval ending at midnight stays on one day", keys)
	}
}

func TestDayKeysNonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	start := time.Date(2026, 4, 15, 2, 0, 0, 0, loc) // 2026-04-14 21:00 UTC
	keys := dayKeys(start, start.Add(time.Hour))
	if len(keys) != 1 || keys[0] != "lock:bookday:2026-04-14" {
		t.Fatalf("keys = %v, want the UTC day", keys)
	}
}
