package clock

import (
	"testing"
	"time"
)

func TestDateOf_UsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 23:30 UTC on the 1st is already the 2nd at UTC+3.
	instant := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC).In(loc)

	got := DateOf(instant)
	want := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateOf = %v, want %v", got, want)
	}
}

func TestFixed_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}

	c.Advance(24 * time.Hour)
	if got := Today(c); !got.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2025-01-02 after advance, got %v", got)
	}

	c.Set(time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC))
	if c.Now().Year() != 2030 {
		t.Errorf("expected year 2030, got %d", c.Now().Year())
	}
}

func TestReal_UsesLocation(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)
	r := Real{Location: loc}
	if r.Now().Location() != loc {
		t.Errorf("expected location %v, got %v", loc, r.Now().Location())
	}
}
