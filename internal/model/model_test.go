package model

import (
	"testing"
	"time"
)

func TestUserLocationFallback(t *testing.T) {
	t.Parallel()

	u := User{Timezone: "Europe/Berlin"}
	if got := u.Location().String(); got != "Europe/Berlin" {
		t.Fatalf("Location() = %q", got)
	}

	for _, tz := range []string{"", "Mars/Olympus"} {
		u := User{Timezone: tz}
		if got := u.Location(); got != time.UTC {
			t.Fatalf("Location(%q) = %v, want UTC", tz, got)
		}
	}
}

func TestTaskInterval(t *testing.T) {
	t.Parallel()

	start := TimeOfDayFrom(9, 0)
	task := Task{Time: &start, Duration: 90 * time.Minute}
	want := Interval{Start: TimeOfDayFrom(9, 0), End: TimeOfDayFrom(10, 30)}
	if got := task.Interval(); got != want {
		t.Fatalf("Interval() = %v, want %v", got, want)
	}

	if got := (Task{}).Interval(); got.Valid() {
		t.Fatalf("timeless task interval = %v, want zero-width", got)
	}
}

func TestTaskStatisticsCompletionRate(t *testing.T) {
	t.Parallel()

	s := TaskStatistics{Pending: 1, Completed: 8, Skipped: 1, Rescheduled: 5}
	if got := s.Total(); got != 15 {
		t.Fatalf("Total = %d", got)
	}
	// Rescheduled placements do not count toward the rate.
	if got := s.CompletionRate(); got != 80 {
		t.Fatalf("CompletionRate = %v, want 80", got)
	}

	if got := (TaskStatistics{}).CompletionRate(); got != 0 {
		t.Fatalf("empty CompletionRate = %v", got)
	}
}

func TestValidators(t *testing.T) {
	t.Parallel()

	for p, want := range map[int]bool{0: false, 1: true, 5: true, 6: false} {
		if got := ValidPriority(p); got != want {
			t.Errorf("ValidPriority(%d) = %v", p, got)
		}
	}
	for d, want := range map[int]bool{-1: false, 0: true, 6: true, 7: false} {
		if got := ValidWeekday(d); got != want {
			t.Errorf("ValidWeekday(%d) = %v", d, got)
		}
	}
}
