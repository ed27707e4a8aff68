package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"planbot/internal/model"
	logx "planbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st Store, id model.UserID) model.User {
	t.Helper()
	u := model.User{ID: id, Username: "tester", Timezone: "Europe/Berlin", Active: true}
	if err := st.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func TestUserRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	seedUser(t, st, 42)
	got, err := st.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Username != "tester" || got.Timezone != "Europe/Berlin" || !got.Active {
		t.Errorf("unexpected user: %+v", got)
	}

	// Upsert updates in place.
	got.Active = false
	if err := st.UpsertUser(ctx, got); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	active, err := st.ListActiveUsers(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active users, got %d", len(active))
	}

	if _, err := st.GetUser(ctx, 99); err != ErrNotFound {
		t.Errorf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestGoalLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	target := model.Date{Year: 2026, Month: 9, Day: 30}
	g := model.Goal{
		ID:         uuid.New(),
		UserID:     1,
		Title:      "learn italian",
		Priority:   4,
		TargetDate: &target,
		Status:     model.GoalActive,
	}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	got, err := st.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.TargetDate == nil || *got.TargetDate != target {
		t.Errorf("target date: got %v, want %v", got.TargetDate, target)
	}

	if err := st.UpdateGoalStatus(ctx, g.ID, model.GoalPaused); err != nil {
		t.Fatalf("update status: %v", err)
	}
	actives, err := st.ListActiveGoals(ctx, 1)
	if err != nil {
		t.Fatalf("list active goals: %v", err)
	}
	if len(actives) != 0 {
		t.Errorf("paused goal listed as active")
	}

	if err := st.UpdateGoalStatus(ctx, uuid.New(), model.GoalActive); err != ErrNotFound {
		t.Errorf("update missing goal: got %v, want ErrNotFound", err)
	}
}

func TestTaskQueriesAndCascade(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	g := model.Goal{ID: uuid.New(), UserID: 1, Title: "g", Priority: 3, Status: model.GoalActive}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	day := model.Date{Year: 2026, Month: 8, Day: 26}
	at := model.TimeOfDay(9 * 60)
	tasks := []model.Task{
		{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "a", Date: day, Time: &at, Duration: time.Hour, Priority: 3, Status: model.TaskPending},
		{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "b", Date: day.AddDays(1), Duration: 30 * time.Minute, Priority: 2, Status: model.TaskPending},
	}
	if err := st.CreateTasks(ctx, tasks); err != nil {
		t.Fatalf("create tasks: %v", err)
	}

	forDay, err := st.ListTasksForDate(ctx, 1, day)
	if err != nil {
		t.Fatalf("list for date: %v", err)
	}
	if len(forDay) != 1 || forDay[0].Title != "a" {
		t.Fatalf("list for date: got %d tasks", len(forDay))
	}
	if forDay[0].Time == nil || *forDay[0].Time != at {
		t.Errorf("time of day: got %v", forDay[0].Time)
	}
	if forDay[0].Duration != time.Hour {
		t.Errorf("duration: got %v", forDay[0].Duration)
	}

	pending, err := st.ListPendingTasks(ctx, 1, DateRange{From: day, To: day.AddDays(7)})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending: got %d, want 2", len(pending))
	}

	if err := st.UpdateTaskStatus(ctx, tasks[0].ID, model.TaskCompleted); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	stats, err := st.TaskStatistics(ctx, 1)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.Completed != 1 || stats.Pending != 1 {
		t.Errorf("stats: %+v", stats)
	}

	// Deleting the goal removes its tasks and reminders.
	r := model.Reminder{ID: uuid.New(), TaskID: tasks[1].ID, UserID: 1, At: time.Now().UTC(), Message: "m", Status: model.ReminderPending}
	if err := st.CreateReminder(ctx, r); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if err := st.DeleteGoal(ctx, g.ID); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	if _, err := st.GetTask(ctx, tasks[0].ID); err != ErrNotFound {
		t.Errorf("task after cascade: got %v, want ErrNotFound", err)
	}
	left, err := st.ListTaskReminders(ctx, tasks[1].ID)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("reminders survived goal delete: %d", len(left))
	}
}

func TestReminderDispatchQueries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	g := model.Goal{ID: uuid.New(), UserID: 1, Title: "g", Priority: 3, Status: model.GoalActive}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	task := model.Task{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "t", Date: model.Date{Year: 2026, Month: 8, Day: 26}, Duration: time.Hour, Priority: 3, Status: model.TaskPending}
	if err := st.CreateTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	early := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: now.Add(-10 * time.Minute), Message: "early", Status: model.ReminderPending}
	late := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: now.Add(-1 * time.Minute), Message: "late", Status: model.ReminderPending}
	future := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: now.Add(time.Hour), Message: "future", Status: model.ReminderPending}
	for _, r := range []model.Reminder{late, early, future} {
		if err := st.CreateReminder(ctx, r); err != nil {
			t.Fatalf("create reminder: %v", err)
		}
	}

	due, err := st.ListDueReminders(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due: got %d, want 2", len(due))
	}
	// Oldest first.
	if due[0].Message != "early" || due[1].Message != "late" {
		t.Errorf("due order: %q, %q", due[0].Message, due[1].Message)
	}

	limited, err := st.ListDueReminders(ctx, now, 1)
	if err != nil {
		t.Fatalf("list due limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Message != "early" {
		t.Errorf("limit did not keep oldest")
	}
}

func TestReminderInstantOrderingAcrossSecondBoundary(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	g := model.Goal{ID: uuid.New(), UserID: 1, Title: "g", Priority: 3, Status: model.GoalActive}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	task := model.Task{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "t", Date: model.Date{Year: 2026, Month: 8, Day: 26}, Duration: time.Hour, Priority: 3, Status: model.TaskPending}
	if err := st.CreateTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Stored instants compare as text, so a whole second and a fractional
	// one must still sort chronologically.
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	whole := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: base, Message: "whole", Status: model.ReminderPending}
	half := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: base.Add(500 * time.Millisecond), Message: "half", Status: model.ReminderPending}
	next := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: base.Add(time.Second), Message: "next", Status: model.ReminderPending}
	for _, r := range []model.Reminder{next, half, whole} {
		if err := st.CreateReminder(ctx, r); err != nil {
			t.Fatalf("create reminder: %v", err)
		}
	}

	due, err := st.ListDueReminders(ctx, base.Add(500*time.Millisecond), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due at the half-second cutoff: got %d, want 2", len(due))
	}
	if due[0].Message != "whole" || due[1].Message != "half" {
		t.Errorf("due order: %q, %q", due[0].Message, due[1].Message)
	}
	if !due[1].At.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("fractional instant round-trip: %v", due[1].At)
	}
}

func TestReminderStatusCAS(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	g := model.Goal{ID: uuid.New(), UserID: 1, Title: "g", Priority: 3, Status: model.GoalActive}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	task := model.Task{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "t", Date: model.Date{Year: 2026, Month: 8, Day: 26}, Duration: time.Hour, Priority: 3, Status: model.TaskPending}
	if err := st.CreateTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	r := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: time.Now().UTC(), Message: "m", Status: model.ReminderPending}
	if err := st.CreateReminder(ctx, r); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	ok, err := st.UpdateReminderStatusCAS(ctx, r.ID, model.ReminderPending, model.ReminderSent, 1)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if !ok {
		t.Fatal("first transition should win")
	}

	// Second transition from pending must lose: the reminder is already sent.
	ok, err = st.UpdateReminderStatusCAS(ctx, r.ID, model.ReminderPending, model.ReminderFailed, 2)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("transition from stale status should not apply")
	}

	got, err := st.ListTaskReminders(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Status != model.ReminderSent || got[0].Attempts != 1 {
		t.Errorf("final state: %+v", got[0])
	}
	if got[0].SentAt == nil {
		t.Error("sent_at not stamped")
	}
}

func TestCancelTaskReminders(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedUser(t, st, 1)

	g := model.Goal{ID: uuid.New(), UserID: 1, Title: "g", Priority: 3, Status: model.GoalActive}
	if err := st.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	task := model.Task{ID: uuid.New(), GoalID: g.ID, UserID: 1, Title: "t", Date: model.Date{Year: 2026, Month: 8, Day: 26}, Duration: time.Hour, Priority: 3, Status: model.TaskPending}
	if err := st.CreateTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	pending := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: time.Now().UTC(), Message: "p", Status: model.ReminderPending}
	sent := model.Reminder{ID: uuid.New(), TaskID: task.ID, UserID: 1, At: time.Now().UTC(), Message: "s", Status: model.ReminderSent}
	for _, r := range []model.Reminder{pending, sent} {
		if err := st.CreateReminder(ctx, r); err != nil {
			t.Fatalf("create reminder: %v", err)
		}
	}

	n, err := st.CancelTaskReminders(ctx, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled %d, want 1 (sent reminders stay sent)", n)
	}

	// Idempotent.
	n, err = st.CancelTaskReminders(ctx, task.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if n != 0 {
		t.Errorf("second cancel touched %d rows", n)
	}
}
