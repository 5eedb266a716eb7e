package availability

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
}

func at(d time.Time, hour int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, d.Location())
}

func TestFindStart_EmptyDay(t *testing.T) {
	d := day(t)

	start, ok := FindStart(nil, d, 3*time.Hour)
	if !ok {
		t.Fatal("expected a slot on an empty day")
	}
	if !start.Equal(at(d, 9)) {
		t.Fatalf("expected 09:00, got %s", start.Format(time.RFC3339))
	}
}

func TestFindStart_SkipsOverlaps(t *testing.T) {
	d := day(t)
	busy := []Interval{{Start: at(d, 10), End: at(d, 11)}}

	// 09:00-11:00 and 10:00-12:00 both overlap [10:00,11:00); 11:00-13:00 is free.
	start, ok := FindStart(busy, d, 2*time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	if !start.Equal(at(d, 11)) {
		t.Fatalf("expected 11:00, got %s", start.Format(time.RFC3339))
	}
}

func TestFindStart_AfterBackToBackMorning(t *testing.T) {
	d := day(t)
	busy := []Interval{
		{Start: at(d, 9), End: at(d, 10)},
		{Start: at(d, 10), End: at(d, 12)},
	}

	start, ok := FindStart(busy, d, time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	if !start.Equal(at(d, 12)) {
		t.Fatalf("expected 12:00, got %s", start.Format(time.RFC3339))
	}
}

func TestFindStart_FullyBooked(t *testing.T) {
	d := day(t)
	busy := []Interval{{Start: at(d, 9), End: at(d, 17)}}

	for _, dur := range []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour} {
		if _, ok := FindStart(busy, d, dur); ok {
			t.Fatalf("expected no slot for %s on a fully booked day", dur)
		}
	}
}

func TestFindStart_ClosingBoundary(t *testing.T) {
	d := day(t)

	// A 3h booking can start at 14:00 at the latest (ends exactly 17:00).
	busy := []Interval{{Start: at(d, 9), End: at(d, 14)}}
	start, ok := FindStart(busy, d, 3*time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	if !start.Equal(at(d, 14)) {
		t.Fatalf("expected 14:00, got %s", start.Format(time.RFC3339))
	}

	// One hour later and the 3h request no longer fits anywhere.
	busy = []Interval{{Start: at(d, 9), End: at(d, 15)}}
	if _, ok := FindStart(busy, d, 3*time.Hour); ok {
		t.Fatal("expected no slot: a 3h booking starting 15:00 would end past close")
	}
}

func TestFindStart_Deterministic(t *testing.T) {
	d := day(t)
	busy := []Interval{
		{Start: at(d, 9), End: at(d, 11)},
		{Start: at(d, 13), End: at(d, 14)},
	}

	first, ok := FindStart(busy, d, 2*time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	for i := 0; i < 10; i++ {
		again, ok := FindStart(busy, d, 2*time.Hour)
		if !ok || !again.Equal(first) {
			t.Fatalf("call %d returned %s, want %s", i, again.Format(time.RFC3339), first.Format(time.RFC3339))
		}
	}
}

func TestFindStart_IgnoresTimeOfDay(t *testing.T) {
	d := day(t).Add(15*time.Hour + 42*time.Minute)

	start, ok := FindStart(nil, d, time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	if !start.Equal(at(day(t), 9)) {
		t.Fatalf("expected 09:00 regardless of day's clock component, got %s", start.Format(time.RFC3339))
	}
}

func TestOpenings(t *testing.T) {
	d := day(t)
	busy := []Interval{{Start: at(d, 10), End: at(d, 11)}}

	slots := Openings(busy, d, 2*time.Hour)
	// Starts 11..15 inclusive: 09 and 10 collide, 16 would end past close.
	want := []int{11, 12, 13, 14, 15}
	if len(slots) != len(want) {
		t.Fatalf("expected %d openings, got %d", len(want), len(slots))
	}
	for i, h := range want {
		if !slots[i].Equal(at(d, h)) {
			t.Fatalf("openings[%d] = %s, want %02d:00", i, slots[i].Format(time.RFC3339), h)
		}
	}

	if slots := Openings(nil, d, 0); slots != nil {
		t.Fatal("expected nil openings for non-positive duration")
	}
}
