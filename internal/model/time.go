package model

import (
	"fmt"
	"time"
)

// Date is a civil date with no time-of-day or zone attached. Scheduling and
// availability work in the user's local calendar; a Date only becomes an
// instant when combined with a TimeOfDay and a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// At combines the date with a time-of-day in loc. Normalization through
// time.Date keeps the result correct across DST transitions.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.At(0, time.UTC).AddDate(0, 0, n))
}

// Weekday returns 0=Monday .. 6=Sunday.
func (d Date) Weekday() int {
	wd := d.At(0, time.UTC).Weekday()
	return (int(wd) + 6) % 7
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) After(o Date) bool { return o.Before(d) }

// DaysUntil returns the number of calendar days from d to o (negative if o is
// earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.At(0, time.UTC).Sub(d.At(0, time.UTC)) / (24 * time.Hour))
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// TimeOfDay is minutes from local midnight. The planner never needs finer
// resolution and minutes keep interval arithmetic exact.
type TimeOfDay int

func TimeOfDayFrom(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return TimeOfDayFrom(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	p, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = p
	return nil
}

// Interval is a half-open [Start, End) time-of-day range within one day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Valid reports whether the interval has positive width. Malformed intervals
// (end <= start) are treated as zero-width by the engine instead of erroring.
func (iv Interval) Valid() bool { return iv.End > iv.Start }

func (iv Interval) Duration() time.Duration {
	if !iv.Valid() {
		return 0
	}
	return time.Duration(iv.End-iv.Start) * time.Minute
}

func (iv Interval) Overlaps(o Interval) bool {
	return iv.Valid() && o.Valid() && iv.Start < o.End && o.Start < iv.End
}

func (iv Interval) Contains(o Interval) bool {
	return iv.Valid() && o.Valid() && iv.Start <= o.Start && o.End <= iv.End
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}
