// Package ics renders a user's scheduled plan as an iCalendar document.
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"planbot/internal/model"
)

const prodID = "-//planbot//scheduling engine//EN"

// Export builds a VEVENT per scheduled task. Tasks without a time
// component are emitted as all-day events on their date. Times are
// resolved in the given location and serialized as UTC instants.
func Export(tasks []model.Task, loc *time.Location) []byte {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	now := time.Now().UTC()
	for _, t := range tasks {
		ev := cal.AddEvent(t.ID.String())
		ev.SetDtStampTime(now)
		ev.SetSummary(t.Title)
		if t.Description != "" {
			ev.SetDescription(t.Description)
		}

		if t.Time == nil {
			ev.SetAllDayStartAt(t.Date.At(0, loc))
			ev.SetAllDayEndAt(t.Date.AddDays(1).At(0, loc))
			continue
		}
		start := t.Date.At(*t.Time, loc).UTC()
		end := start.Add(t.Duration)
		if t.Duration <= 0 {
			end = start.Add(30 * time.Minute)
		}
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}

	return []byte(cal.Serialize())
}
