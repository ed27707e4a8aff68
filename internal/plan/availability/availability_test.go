package availability

import (
	"testing"
	"time"

	"planbot/internal/model"
)

func tod(h, m int) model.TimeOfDay { return model.TimeOfDay(h*60 + m) }

func iv(sh, sm, eh, em int) model.Interval {
	return model.Interval{Start: tod(sh, sm), End: tod(eh, em)}
}

// Wednesday.
var day = model.Date{Year: 2026, Month: 8, Day: 26}

func TestFreeWindowsSingleDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []model.WeeklyBlock
		events []model.SpecialEvent
		want   []model.Interval
	}{
		{
			name: "empty schedule yields the whole day bound",
			want: []model.Interval{iv(6, 0, 23, 0)},
		},
		{
			name: "weekly block splits the day",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(9, 0), End: tod(17, 0)}, // Wednesday
			},
			want: []model.Interval{iv(6, 0, 9, 0), iv(17, 0, 23, 0)},
		},
		{
			name: "block on another weekday is ignored",
			blocks: []model.WeeklyBlock{
				{Weekday: 3, Start: tod(9, 0), End: tod(17, 0)}, // Thursday
			},
			want: []model.Interval{iv(6, 0, 23, 0)},
		},
		{
			name: "overlapping blocks are unioned not double counted",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(9, 0), End: tod(12, 0)},
				{Weekday: 2, Start: tod(11, 0), End: tod(14, 0)},
			},
			want: []model.Interval{iv(6, 0, 9, 0), iv(14, 0, 23, 0)},
		},
		{
			name: "blocking event carves a hole",
			events: []model.SpecialEvent{
				{Date: day, Start: tod(10, 0), End: tod(11, 0), BlocksScheduling: true},
			},
			want: []model.Interval{iv(6, 0, 10, 0), iv(11, 0, 23, 0)},
		},
		{
			name: "non-blocking event leaves the day free",
			events: []model.SpecialEvent{
				{Date: day, Start: tod(10, 0), End: tod(11, 0)},
			},
			want: []model.Interval{iv(6, 0, 23, 0)},
		},
		{
			name: "all-day blocking event suppresses the day entirely",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(9, 0), End: tod(10, 0)},
			},
			events: []model.SpecialEvent{
				{Date: day, AllDay: true, BlocksScheduling: true},
			},
			want: nil,
		},
		{
			name: "day fully covered yields zero windows",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(5, 0), End: tod(23, 30)},
			},
			want: nil,
		},
		{
			name: "malformed block interval collapses to zero width",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(17, 0), End: tod(9, 0)},
			},
			want: []model.Interval{iv(6, 0, 23, 0)},
		},
		{
			name: "gap shorter than the minimum window is dropped",
			blocks: []model.WeeklyBlock{
				{Weekday: 2, Start: tod(6, 0), End: tod(12, 0)},
				{Weekday: 2, Start: tod(12, 10), End: tod(23, 0)},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FreeWindows(tt.blocks, tt.events, day, day, Options{})
			windows, ok := got[day]
			if !ok {
				t.Fatalf("no entry for %v", day)
			}
			if len(windows) != len(tt.want) {
				t.Fatalf("windows: got %v, want %v", windows, tt.want)
			}
			for i := range windows {
				if windows[i] != tt.want[i] {
					t.Errorf("window %d: got %v, want %v", i, windows[i], tt.want[i])
				}
			}
		})
	}
}

func TestFreeWindowsRangeExpansion(t *testing.T) {
	t.Parallel()

	blocks := []model.WeeklyBlock{
		{Weekday: 0, Start: tod(9, 0), End: tod(17, 0)}, // every Monday
	}
	from := model.Date{Year: 2026, Month: 8, Day: 24} // Monday
	to := from.AddDays(13)

	got := FreeWindows(blocks, nil, from, to, Options{})
	if len(got) != 14 {
		t.Fatalf("days: got %d, want 14", len(got))
	}
	for d := from; !d.After(to); d = d.AddDays(1) {
		windows := got[d]
		if d.Weekday() == 0 {
			if len(windows) != 2 {
				t.Errorf("%v (Monday): got %d windows, want 2", d, len(windows))
			}
			continue
		}
		if len(windows) != 1 || windows[0] != iv(6, 0, 23, 0) {
			t.Errorf("%v: got %v, want full day", d, windows)
		}
	}
}

func TestFreeWindowsCustomBound(t *testing.T) {
	t.Parallel()

	got := FreeWindows(nil, nil, day, day, Options{
		DayStart:  tod(8, 0),
		DayEnd:    tod(20, 0),
		MinWindow: time.Hour,
	})
	windows := got[day]
	if len(windows) != 1 || windows[0] != iv(8, 0, 20, 0) {
		t.Errorf("got %v, want 08:00-20:00", windows)
	}
}

func TestFreeWindowsInvertedRange(t *testing.T) {
	t.Parallel()

	got := FreeWindows(nil, nil, day, day.AddDays(-1), Options{})
	if len(got) != 0 {
		t.Errorf("inverted range: got %d days, want 0", len(got))
	}
}
