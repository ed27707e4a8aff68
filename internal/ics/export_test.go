package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"planbot/internal/model"
)

func TestExport(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	at := model.TimeOfDay(9 * 60)
	timed := model.Task{
		ID:       uuid.New(),
		Title:    "Write chapter",
		Date:     model.Date{Year: 2026, Month: 8, Day: 26},
		Time:     &at,
		Duration: 90 * time.Minute,
	}
	allDay := model.Task{
		ID:    uuid.New(),
		Title: "Floating task",
		Date:  model.Date{Year: 2026, Month: 8, Day: 27},
	}

	out := Export([]model.Task{timed, allDay}, loc)

	cal, err := ical.ParseCalendar(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}

	start, err := events[0].GetStartAt()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// 09:00 CEST is 07:00 UTC.
	want := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start: got %v, want %v", start, want)
	}

	text := string(out)
	if !strings.Contains(text, "SUMMARY:Write chapter") {
		t.Error("summary missing")
	}
	if !strings.Contains(text, timed.ID.String()) {
		t.Error("uid missing")
	}
}
