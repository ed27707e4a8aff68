package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"planbot/internal/model"
	logx "planbot/pkg/logx"
)

var (
	ErrNotFound = errors.New("not found")
	ErrDisabled = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL via DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DateRange is an inclusive civil date range.
type DateRange struct {
	From model.Date
	To   model.Date
}

// Store is the persistence API used by the engine. It is the single point of
// coordination between request-driven mutations and the background reminder
// dispatcher, so reminder status changes go through compare-and-set.
type Store interface {
	// Users.
	UpsertUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id model.UserID) (model.User, error)
	ListActiveUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id model.UserID) error

	// Weekly blocks.
	AddWeeklyBlock(ctx context.Context, b model.WeeklyBlock) (int64, error)
	ListWeeklyBlocks(ctx context.Context, user model.UserID) ([]model.WeeklyBlock, error)
	DeleteWeeklyBlock(ctx context.Context, user model.UserID, id int64) error

	// Special events.
	AddSpecialEvent(ctx context.Context, e model.SpecialEvent) (int64, error)
	ListSpecialEvents(ctx context.Context, user model.UserID, rng DateRange) ([]model.SpecialEvent, error)
	DeleteSpecialEvent(ctx context.Context, user model.UserID, id int64) error

	// Goals.
	CreateGoal(ctx context.Context, g model.Goal) error
	GetGoal(ctx context.Context, id uuid.UUID) (model.Goal, error)
	ListGoals(ctx context.Context, user model.UserID) ([]model.Goal, error)
	ListActiveGoals(ctx context.Context, user model.UserID) ([]model.Goal, error)
	UpdateGoalStatus(ctx context.Context, id uuid.UUID, status model.GoalStatus) error
	DeleteGoal(ctx context.Context, id uuid.UUID) error // cascades to tasks and reminders

	// Tasks.
	CreateTasks(ctx context.Context, tasks []model.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (model.Task, error)
	ListTasksForDate(ctx context.Context, user model.UserID, d model.Date) ([]model.Task, error)
	ListPendingTasks(ctx context.Context, user model.UserID, rng DateRange) ([]model.Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) error
	TaskStatistics(ctx context.Context, user model.UserID) (model.TaskStatistics, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error // cascades to reminders

	// Reminders.
	CreateReminder(ctx context.Context, r model.Reminder) error
	ListDueReminders(ctx context.Context, before time.Time, limit int) ([]model.Reminder, error)
	ListTaskReminders(ctx context.Context, task uuid.UUID) ([]model.Reminder, error)
	// UpdateReminderStatusCAS transitions a reminder from->to, returning false
	// when the reminder was not in the expected state. attempts records the
	// delivery attempt count; sent_at is stamped when to is ReminderSent.
	UpdateReminderStatusCAS(ctx context.Context, id uuid.UUID, from, to model.ReminderStatus, attempts int) (bool, error)
	// CancelTaskReminders CAS-cancels all pending reminders of a task.
	// Idempotent; returns how many were cancelled.
	CancelTaskReminders(ctx context.Context, task uuid.UUID) (int, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	case "", "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
