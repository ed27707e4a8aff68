// Package model holds the planner's domain entities.
//
// Ownership: a User owns goals, weekly blocks, special events, tasks and
// reminders; a Goal owns its tasks; a Task owns its reminders. Deletions
// cascade along that chain (enforced in storage).
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UserID is the Telegram chat id that identifies a user.
type UserID int64

type User struct {
	ID        UserID
	Username  string
	Timezone  string // IANA zone name, e.g. "Europe/Berlin"
	Active    bool
	CreatedAt time.Time
}

// Location resolves the user's zone, falling back to UTC on a bad value.
// Offsets are never cached: LoadLocation data handles DST transitions.
func (u User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// WeeklyBlock is a recurring weekly busy interval (0=Monday .. 6=Sunday).
// Blocks may overlap; busy time is their union.
type WeeklyBlock struct {
	ID       int64
	UserID   UserID
	Weekday  int
	Start    TimeOfDay
	End      TimeOfDay
	Activity string
}

func (b WeeklyBlock) Interval() Interval { return Interval{Start: b.Start, End: b.End} }

// SpecialEvent is a one-off busy interval on a concrete date.
// Only events with BlocksScheduling remove availability; an all-day event
// suppresses the whole day.
type SpecialEvent struct {
	ID               int64
	UserID           UserID
	Title            string
	Date             Date
	Start            TimeOfDay
	End              TimeOfDay
	AllDay           bool
	BlocksScheduling bool
}

func (e SpecialEvent) Interval() Interval { return Interval{Start: e.Start, End: e.End} }

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
	GoalCancelled GoalStatus = "cancelled"
)

type Goal struct {
	ID          uuid.UUID
	UserID      UserID
	Title       string
	Description string
	Priority    int // 1..5
	TargetDate  *Date
	Status      GoalStatus
	CreatedAt   time.Time
}

type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskCompleted   TaskStatus = "completed"
	TaskSkipped     TaskStatus = "skipped"
	TaskRescheduled TaskStatus = "rescheduled"
)

// Task is a concrete placed unit of work. Duration is immutable after
// creation; Date/Time may be reassigned by re-planning.
type Task struct {
	ID          uuid.UUID
	GoalID      uuid.UUID
	UserID      UserID
	Title       string
	Description string
	Date        Date
	Time        *TimeOfDay // nil means unscheduled within the day
	Duration    time.Duration
	Priority    int // 1..5
	Status      TaskStatus
	Payload     TaskPayload
	CreatedAt   time.Time
}

// Interval returns the scheduled [start, start+duration) interval, or a
// zero-width interval when the task carries no time component.
func (t Task) Interval() Interval {
	if t.Time == nil {
		return Interval{}
	}
	return Interval{Start: *t.Time, End: t.Time.Add(t.Duration)}
}

// TaskPayload is the versioned structured payload attached to a task.
// Fields the engine consumes (duration, priority, dates) live as typed
// columns on Task; everything authored upstream that the engine merely
// carries (rationale text, provider metadata) is opaque pass-through here.
type TaskPayload struct {
	Version   int             `json:"version"`
	Rationale string          `json:"rationale,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// PayloadVersion is the current TaskPayload schema version.
const PayloadVersion = 1

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder fires a notification at an absolute UTC instant.
// pending is the only mutable state; sent/failed/cancelled are terminal.
type Reminder struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	UserID    UserID
	At        time.Time // UTC
	Message   string
	Status    ReminderStatus
	Attempts  int
	SentAt    *time.Time
	CreatedAt time.Time
}

// ValidPriority reports whether p is within the 1..5 scale.
func ValidPriority(p int) bool { return p >= 1 && p <= 5 }

// ValidWeekday reports whether d is a 0=Monday .. 6=Sunday index.
func ValidWeekday(d int) bool { return d >= 0 && d <= 6 }

// TaskStatistics aggregates a user's tasks by status for progress summaries.
type TaskStatistics struct {
	Pending     int
	Completed   int
	Skipped     int
	Rescheduled int
}

func (s TaskStatistics) Total() int {
	return s.Pending + s.Completed + s.Skipped + s.Rescheduled
}

// CompletionRate is completed / (completed+pending+skipped) in percent.
// Rescheduled tasks are superseded placements, not outstanding work.
func (s TaskStatistics) CompletionRate() float64 {
	total := s.Completed + s.Pending + s.Skipped
	if total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(total) * 100
}
