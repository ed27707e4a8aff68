package model

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2026-08-26")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != NewDate(2026, time.August, 26) {
		t.Fatalf("got %v", d)
	}
	if got := d.String(); got != "2026-08-26" {
		t.Fatalf("String() = %q", got)
	}

	for _, bad := range []string{"", "26.08.2026", "2026-13-01", "2026-02-30"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("ParseDate(%q) should fail", bad)
		}
	}
}

func TestDateWeekdayAndArithmetic(t *testing.T) {
	t.Parallel()

	wed := NewDate(2026, time.August, 26)
	if got := wed.Weekday(); got != 2 {
		t.Fatalf("Wednesday weekday = %d, want 2", got)
	}
	if got := NewDate(2026, time.August, 30).Weekday(); got != 6 {
		t.Fatalf("Sunday weekday = %d, want 6", got)
	}

	// Month rollover.
	if got := wed.AddDays(6); got != NewDate(2026, time.September, 1) {
		t.Fatalf("AddDays(6) = %v", got)
	}
	if got := wed.AddDays(-26); got != NewDate(2026, time.July, 31) {
		t.Fatalf("AddDays(-26) = %v", got)
	}

	if got := wed.DaysUntil(NewDate(2026, time.September, 2)); got != 7 {
		t.Fatalf("DaysUntil = %d, want 7", got)
	}
	if got := wed.DaysUntil(wed.AddDays(-3)); got != -3 {
		t.Fatalf("DaysUntil backwards = %d, want -3", got)
	}

	if !wed.Before(NewDate(2026, time.September, 1)) {
		t.Fatal("Before across month boundary")
	}
	if !NewDate(2027, time.January, 1).After(wed) {
		t.Fatal("After across year boundary")
	}
}

func TestDateAtHonorsLocation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// US DST starts 2026-03-08: local 10:00 is 15:00 UTC the day before
	// and 14:00 UTC after the spring-forward.
	tod := TimeOfDayFrom(10, 0)
	before := NewDate(2026, time.March, 7).At(tod, loc).UTC()
	after := NewDate(2026, time.March, 8).At(tod, loc).UTC()
	if before.Hour() != 15 {
		t.Fatalf("EST 10:00 = %02d:00 UTC, want 15:00", before.Hour())
	}
	if after.Hour() != 14 {
		t.Fatalf("EDT 10:00 = %02d:00 UTC, want 14:00", after.Hour())
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:30", want: TimeOfDayFrom(9, 30)},
		{in: "0:00", want: 0},
		{in: "23:59", want: TimeOfDayFrom(23, 59)},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTimeOfDayText(t *testing.T) {
	t.Parallel()

	tod := TimeOfDayFrom(7, 5)
	if got := tod.String(); got != "07:05" {
		t.Fatalf("String() = %q", got)
	}

	var back TimeOfDay
	if err := back.UnmarshalText([]byte("07:05")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != tod {
		t.Fatalf("round trip = %v", back)
	}

	if got := tod.Add(90 * time.Minute); got != TimeOfDayFrom(8, 35) {
		t.Fatalf("Add = %v", got)
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()

	iv := Interval{Start: TimeOfDayFrom(9, 0), End: TimeOfDayFrom(10, 30)}
	if !iv.Valid() {
		t.Fatal("valid interval reported invalid")
	}
	if got := iv.Duration(); got != 90*time.Minute {
		t.Fatalf("Duration = %v", got)
	}

	// Malformed intervals collapse to zero width.
	bad := Interval{Start: TimeOfDayFrom(10, 0), End: TimeOfDayFrom(9, 0)}
	if bad.Valid() || bad.Duration() != 0 {
		t.Fatal("inverted interval should be zero-width")
	}

	// Half-open semantics: touching intervals do not overlap.
	next := Interval{Start: TimeOfDayFrom(10, 30), End: TimeOfDayFrom(11, 0)}
	if iv.Overlaps(next) {
		t.Fatal("touching intervals should not overlap")
	}
	if !iv.Overlaps(Interval{Start: TimeOfDayFrom(10, 0), End: TimeOfDayFrom(11, 0)}) {
		t.Fatal("expected overlap")
	}
	if !iv.Contains(Interval{Start: TimeOfDayFrom(9, 15), End: TimeOfDayFrom(10, 0)}) {
		t.Fatal("expected containment")
	}
}
