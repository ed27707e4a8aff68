// Package availability turns recurring weekly blocks and one-off events
// into free scheduling windows per date.
package availability

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"planbot/internal/model"
)

const (
	DefaultDayStart  = model.TimeOfDay(6 * 60)
	DefaultDayEnd    = model.TimeOfDay(23 * 60)
	DefaultMinWindow = 15 * time.Minute
)

// Options bound the scheduling day and filter out windows too small to
// hold any task.
type Options struct {
	DayStart  model.TimeOfDay
	DayEnd    model.TimeOfDay
	MinWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.DayEnd <= o.DayStart {
		o.DayStart = DefaultDayStart
		o.DayEnd = DefaultDayEnd
	}
	if o.MinWindow <= 0 {
		o.MinWindow = DefaultMinWindow
	}
	return o
}

// rrule weekdays indexed by our 0=Monday convention.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// FreeWindows computes, for every date in [from, to], the ordered disjoint
// intervals not covered by any weekly block or blocking special event,
// clipped to the day bound. A fully busy day maps to an empty slice; a day
// with an all-day blocking event is suppressed entirely. Pure function of
// its inputs.
func FreeWindows(blocks []model.WeeklyBlock, events []model.SpecialEvent, from, to model.Date, opts Options) map[model.Date][]model.Interval {
	opts = opts.withDefaults()
	out := make(map[model.Date][]model.Interval)
	if to.Before(from) {
		return out
	}

	busy := make(map[model.Date][]model.Interval)
	blocked := make(map[model.Date]bool)

	rangeStart := from.At(0, time.UTC)
	rangeEnd := to.At(model.TimeOfDay(24*60-1), time.UTC)

	for _, b := range blocks {
		if !model.ValidWeekday(b.Weekday) {
			continue
		}
		iv := model.Interval{Start: b.Start, End: b.End}
		if !iv.Valid() {
			// Malformed blocks collapse to zero width rather than failing
			// the whole computation.
			continue
		}
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{rruleWeekdays[b.Weekday]},
			Dtstart:   rangeStart,
		})
		if err != nil {
			continue
		}
		for _, occ := range rule.Between(rangeStart, rangeEnd, true) {
			d := model.DateOf(occ)
			busy[d] = append(busy[d], iv)
		}
	}

	for _, e := range events {
		if !e.BlocksScheduling {
			continue
		}
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		if e.AllDay {
			blocked[e.Date] = true
			continue
		}
		iv := model.Interval{Start: e.Start, End: e.End}
		if !iv.Valid() {
			continue
		}
		busy[e.Date] = append(busy[e.Date], iv)
	}

	for d := from; !d.After(to); d = d.AddDays(1) {
		if blocked[d] {
			out[d] = nil
			continue
		}
		out[d] = complement(mergeBusy(busy[d]), opts)
	}
	return out
}

// mergeBusy unions overlapping intervals into a minimal disjoint set,
// sorted by start.
func mergeBusy(ivs []model.Interval) []model.Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]model.Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// complement walks the merged busy set against the day bound and keeps the
// gaps at least MinWindow long.
func complement(busy []model.Interval, opts Options) []model.Interval {
	minW := model.TimeOfDay(opts.MinWindow / time.Minute)
	var free []model.Interval
	cursor := opts.DayStart
	for _, iv := range busy {
		if iv.End <= cursor {
			continue
		}
		if iv.Start >= opts.DayEnd {
			break
		}
		if iv.Start > cursor {
			end := iv.Start
			if end > opts.DayEnd {
				end = opts.DayEnd
			}
			if end-cursor >= minW {
				free = append(free, model.Interval{Start: cursor, End: end})
			}
		}
		if iv.End > cursor {
			cursor = iv.End
		}
		if cursor >= opts.DayEnd {
			return free
		}
	}
	if opts.DayEnd-cursor >= minW {
		free = append(free, model.Interval{Start: cursor, End: opts.DayEnd})
	}
	return free
}
