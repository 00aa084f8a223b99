package datetime

import (
	"errors"
	"testing"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-08-20T15:00", "2025-08-20T15:00:00.000Z"},
		{"  2025-08-20T15:00:00  ", "2025-08-20T15:00:00.000Z"},
		{"2025-08-20T15:00:00Z", "2025-08-20T15:00:00.000Z"},
		{"2025-08-20T15:00:00.5Z", "2025-08-20T15:00:00.500Z"},
		{"2025-08-20T15:00:00.123456789Z", "2025-08-20T15:00:00.123Z"},
		{"2025-08-20T15:00:00+02:00", "2025-08-20T13:00:00.000Z"},
		{"2025-08-20T15:00-03:00", "2025-08-20T18:00:00.000Z"},
		{"2025-08-20T15:00:00+0530", "2025-08-20T09:30:00.000Z"},
		{"2025-08-20 15:00", "2025-08-20T15:00:00.000Z"},
		{"2025-08-20", "2025-08-20T00:00:00.000Z"},
		{"2025-08-20T15:00:00z", "2025-08-20T15:00:00.000Z"},
		{"20/08/2025 15:00", ""},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if tt.want == "" {
			if err == nil {
				t.Errorf("Normalize(%q) = %q, expected error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, err := Normalize("2025-08-20T15:00:00Z")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatalf("normalize again: %v", err)
	}
	if first != second {
		t.Fatalf("expected %q, got %q", first, second)
	}
}

func TestNormalizeRejectsImpossibleDates(t *testing.T) {
	for _, in := range []string{
		"2025-13-40T25:70:70",
		"2025-02-30T10:00",
		"2025-08-20T24:00",
		"tomorrow at 3",
		"",
		"   ",
	} {
		_, err := Normalize(in)
		if !errors.Is(err, ErrDateTimeInvalid) {
			t.Errorf("Normalize(%q): expected ErrDateTimeInvalid, got %v", in, err)
		}
	}
}

func TestNormalizeTimeValues(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	tm := time.Date(2025, 8, 20, 15, 0, 0, 0, loc)
	got, err := Normalize(tm)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "2025-08-20T13:00:00.000Z" {
		t.Fatalf("unexpected %q", got)
	}
	if _, err := Normalize(time.Time{}); !errors.Is(err, ErrDateTimeInvalid) {
		t.Fatalf("expected zero time to fail, got %v", err)
	}
	if _, err := Normalize(42); !errors.Is(err, ErrDateTimeInvalid) {
		t.Fatalf("expected int to fail, got %v", err)
	}
	day := internal.NewDate(2025, time.August, 20, time.UTC)
	if got, err := Normalize(day); err != nil || got != "2025-08-20T00:00:00.000Z" {
		t.Fatalf("date: %q %v", got, err)
	}
}

func TestNormalizeWindow(t *testing.T) {
	w, err := NormalizeWindow("2025-08-20T15:00", "2025-08-20T16:00", "", "Europe/Berlin")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if w.Start != "2025-08-20T15:00:00.000Z" || w.End != "2025-08-20T16:00:00.000Z" {
		t.Fatalf("unexpected window %+v", w)
	}
	if w.Zone != "Europe/Berlin" {
		t.Fatalf("expected default zone, got %q", w.Zone)
	}

	_, err = NormalizeWindow("2025-08-20T16:00:00", "2025-08-20T15:00:00", "", "UTC")
	if !errors.Is(err, ErrWindowInvalid) {
		t.Fatalf("expected inverted window to fail, got %v", err)
	}
	_, err = NormalizeWindow("2025-08-20T15:00:00", "2025-08-20T15:00:00Z", "", "UTC")
	if !errors.Is(err, ErrWindowInvalid) {
		t.Fatalf("expected empty window to fail, got %v", err)
	}
	_, err = NormalizeWindow("2025-08-20T15:00:00", "2025-08-20T16:00:00", "Mars/Olympus", "UTC")
	if !errors.Is(err, ErrZoneInvalid) {
		t.Fatalf("expected bad zone to fail, got %v", err)
	}
	_, err = NormalizeWindow("nope", "2025-08-20T16:00:00", "", "UTC")
	if !errors.Is(err, ErrDateTimeInvalid) {
		t.Fatalf("expected bad start to fail, got %v", err)
	}
}

func TestDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zoneinfo not available: %v", err)
	}
	now := time.Date(2025, 8, 21, 2, 30, 0, 0, time.UTC) // 22:30 on the 20th in New York
	w := Day(now, loc)
	if w.Start != "2025-08-20T04:00:00.000Z" || w.End != "2025-08-21T04:00:00.000Z" {
		t.Fatalf("unexpected day window %+v", w)
	}
	if w.Zone != "America/New_York" {
		t.Fatalf("unexpected zone %q", w.Zone)
	}
}
