package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2023-03-25")
	if !ok {
		t.Fatalf("expected 2023-03-25 to parse")
	}
	want := time.Date(2023, 3, 25, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
}

func TestParseDateRejectsOtherLayouts(t *testing.T) {
	for _, s := range []string{"", "2023-03-25T10:00:00Z", "25.03.2023", "2023-3-25"} {
		if _, ok := ParseDate(s); ok {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestDayFloorUsesUTCDate(t *testing.T) {
	// 00:30 CET on the 26th is still the 25th in UTC.
	cet := time.FixedZone("CET", 3600)
	in := time.Date(2023, 3, 26, 0, 30, 0, 0, cet)
	got := DayFloor(in)
	want := time.Date(2023, 3, 25, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2023, 3, 25, 9, 3, 17, 0, time.UTC)
	to := time.Date(2023, 3, 25, 17, 44, 0, 0, time.UTC)

	af, at := AlignFromTo(from, to, "30m")
	if af.Minute() != 0 || at.Minute() != 30 {
		t.Fatalf("30m alignment got %v .. %v", af, at)
	}

	af, at = AlignFromTo(from, to, "1d")
	if af.Hour() != 0 || at.Hour() != 0 {
		t.Fatalf("1d alignment got %v .. %v", af, at)
	}

	// Unknown intervals fall back to minute precision.
	af, _ = AlignFromTo(from, to, "7m")
	if af.Second() != 0 || af.Minute() != 3 {
		t.Fatalf("fallback alignment got %v", af)
	}
}
