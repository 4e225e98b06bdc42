package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestExpBackoffDoublesAndCaps(t *testing.T) {
	base := 30 * time.Second
	max := 4 * time.Minute

	cases := map[int]time.Duration{
		0: 30 * time.Second,
		1: time.Minute,
		2: 2 * time.Minute,
		3: 4 * time.Minute,
		9: 4 * time.Minute,
	}
	for attempts, want := range cases {
		if got := ExpBackoff(base, max, attempts); got != want {
			t.Fatalf("attempts=%d: expected %v, got %v", attempts, want, got)
		}
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	if !FromEpochMillis(0).IsZero() {
		t.Fatalf("expected zero time for 0 millis")
	}
	ts := FromEpochMillis(1_700_000_000_123)
	if ToEpochMillis(ts) != 1_700_000_000_123 {
		t.Fatalf("unexpected millis: %d", ToEpochMillis(ts))
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := NewAppError("store.complete", "commit failed", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error to match")
	}
	if err.Error() != "store.complete: commit failed: boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestNewLoggerToHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", false)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("job", "rhosp-ci"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "job=rhosp-ci") {
		t.Fatalf("expected warn line with attrs, got %s", out)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	// "é" is two bytes; cutting at 2 would split it.
	if got := Truncate("aé", 2); got != "a" {
		t.Fatalf("expected the split rune to be dropped whole, got %q", got)
	}
	if got := Truncate("aé", 3); got != "aé" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
