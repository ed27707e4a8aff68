package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"planbot/internal/model"
	logx "planbot/pkg/logx"
)

// dbStore implements Store on database/sql for both drivers. Queries are
// written with '?' placeholders and rebound to '$n' for postgres.
//
// Persistence conventions shared by both backends:
//   - instants are fixed-width RFC 3339 UTC text (see instantLayout)
//   - civil dates are "2006-01-02" text
//   - times-of-day are minutes-from-midnight integers
type dbStore struct {
	db  *sql.DB
	log logx.Logger
	pg  bool
}

func (s *dbStore) q(query string) string {
	if !s.pg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *dbStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- codecs ----

// instantLayout is RFC 3339 with forced nanosecond digits. The fixed width
// keeps the text lexicographically ordered by instant, which "at <= ?"
// comparisons in the due-reminder query depend on; RFC3339Nano would drop
// trailing zeros and break that ordering around whole seconds.
const instantLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encTime(t time.Time) string { return t.UTC().Format(instantLayout) }

func decTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func encDate(d model.Date) string { return d.String() }

func encDatePtr(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func encTimeOfDayPtr(t *model.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return int(*t)
}

func encPayload(p model.TaskPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode task payload: %w", err)
	}
	return string(b), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// ---- users ----

func (s *dbStore) UpsertUser(ctx context.Context, u model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO users(id, username, timezone, active, created_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   username = excluded.username,
		   timezone = excluded.timezone,
		   active   = excluded.active`),
		int64(u.ID), nullStr(u.Username), u.Timezone, u.Active, encTime(u.CreatedAt),
	)
	return err
}

func (s *dbStore) GetUser(ctx context.Context, id model.UserID) (model.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, username, timezone, active, created_at FROM users WHERE id = ?`), int64(id))
	return scanUser(row)
}

func (s *dbStore) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, username, timezone, active, created_at FROM users WHERE active ORDER BY id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *dbStore) DeleteUser(ctx context.Context, id model.UserID) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM users WHERE id = ?`), int64(id))
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(r rowScanner) (model.User, error) {
	var (
		u        model.User
		id       int64
		username sql.NullString
		created  string
	)
	if err := r.Scan(&id, &username, &u.Timezone, &u.Active, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.ID = model.UserID(id)
	u.Username = username.String
	if t, err := decTime(created); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

// ---- weekly blocks ----

func (s *dbStore) AddWeeklyBlock(ctx context.Context, b model.WeeklyBlock) (int64, error) {
	if s.pg {
		var id int64
		err := s.db.QueryRowContext(ctx, s.q(
			`INSERT INTO weekly_blocks(user_id, weekday, start_min, end_min, activity)
			 VALUES(?,?,?,?,?) RETURNING id`),
			int64(b.UserID), b.Weekday, int(b.Start), int(b.End), nullStr(b.Activity),
		).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO weekly_blocks(user_id, weekday, start_min, end_min, activity)
		 VALUES(?,?,?,?,?)`),
		int64(b.UserID), b.Weekday, int(b.Start), int(b.End), nullStr(b.Activity),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *dbStore) ListWeeklyBlocks(ctx context.Context, user model.UserID) ([]model.WeeklyBlock, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, user_id, weekday, start_min, end_min, activity
		 FROM weekly_blocks WHERE user_id = ? ORDER BY weekday, start_min`), int64(user))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyBlock
	for rows.Next() {
		var (
			b        model.WeeklyBlock
			uid      int64
			st, en   int
			activity sql.NullString
		)
		if err := rows.Scan(&b.ID, &uid, &b.Weekday, &st, &en, &activity); err != nil {
			return nil, err
		}
		b.UserID = model.UserID(uid)
		b.Start = model.TimeOfDay(st)
		b.End = model.TimeOfDay(en)
		b.Activity = activity.String
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *dbStore) DeleteWeeklyBlock(ctx context.Context, user model.UserID, id int64) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM weekly_blocks WHERE id = ? AND user_id = ?`), id, int64(user))
	return err
}

// ---- special events ----

func (s *dbStore) AddSpecialEvent(ctx context.Context, e model.SpecialEvent) (int64, error) {
	args := []any{
		int64(e.UserID), nullStr(e.Title), encDate(e.Date),
		int(e.Start), int(e.End), e.AllDay, e.BlocksScheduling,
	}
	if s.pg {
		var id int64
		err := s.db.QueryRowContext(ctx, s.q(
			`INSERT INTO special_events(user_id, title, date, start_min, end_min, all_day, blocks_scheduling)
			 VALUES(?,?,?,?,?,?,?) RETURNING id`), args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO special_events(user_id, title, date, start_min, end_min, all_day, blocks_scheduling)
		 VALUES(?,?,?,?,?,?,?)`), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *dbStore) ListSpecialEvents(ctx context.Context, user model.UserID, rng DateRange) ([]model.SpecialEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, user_id, title, date, start_min, end_min, all_day, blocks_scheduling
		 FROM special_events
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date, start_min`),
		int64(user), encDate(rng.From), encDate(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SpecialEvent
	for rows.Next() {
		var (
			e      model.SpecialEvent
			uid    int64
			title  sql.NullString
			date   string
			st, en int
		)
		if err := rows.Scan(&e.ID, &uid, &title, &date, &st, &en, &e.AllDay, &e.BlocksScheduling); err != nil {
			return nil, err
		}
		e.UserID = model.UserID(uid)
		e.Title = title.String
		if d, err := model.ParseDate(date); err == nil {
			e.Date = d
		}
		e.Start = model.TimeOfDay(st)
		e.End = model.TimeOfDay(en)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *dbStore) DeleteSpecialEvent(ctx context.Context, user model.UserID, id int64) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM special_events WHERE id = ? AND user_id = ?`), id, int64(user))
	return err
}

// ---- goals ----

func (s *dbStore) CreateGoal(ctx context.Context, g model.Goal) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO goals(id, user_id, title, description, priority, target_date, status, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`),
		g.ID.String(), int64(g.UserID), g.Title, nullStr(g.Description),
		g.Priority, encDatePtr(g.TargetDate), string(g.Status), encTime(g.CreatedAt),
	)
	return err
}

func (s *dbStore) GetGoal(ctx context.Context, id uuid.UUID) (model.Goal, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, user_id, title, description, priority, target_date, status, created_at
		 FROM goals WHERE id = ?`), id.String())
	return scanGoal(row)
}

func (s *dbStore) ListGoals(ctx context.Context, user model.UserID) ([]model.Goal, error) {
	return s.listGoals(ctx, s.q(
		`SELECT id, user_id, title, description, priority, target_date, status, created_at
		 FROM goals WHERE user_id = ? ORDER BY created_at`), int64(user))
}

func (s *dbStore) ListActiveGoals(ctx context.Context, user model.UserID) ([]model.Goal, error) {
	return s.listGoals(ctx, s.q(
		`SELECT id, user_id, title, description, priority, target_date, status, created_at
		 FROM goals WHERE user_id = ? AND status = ? ORDER BY created_at`),
		int64(user), string(model.GoalActive))
}

func (s *dbStore) listGoals(ctx context.Context, query string, args ...any) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGoal(r rowScanner) (model.Goal, error) {
	var (
		g       model.Goal
		id      string
		uid     int64
		desc    sql.NullString
		target  sql.NullString
		status  string
		created string
	)
	if err := r.Scan(&id, &uid, &g.Title, &desc, &g.Priority, &target, &status, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Goal{}, ErrNotFound
		}
		return model.Goal{}, err
	}
	gid, err := uuid.Parse(id)
	if err != nil {
		return model.Goal{}, fmt.Errorf("bad goal id %q: %w", id, err)
	}
	g.ID = gid
	g.UserID = model.UserID(uid)
	g.Description = desc.String
	g.Status = model.GoalStatus(status)
	if target.Valid {
		if d, err := model.ParseDate(target.String); err == nil {
			g.TargetDate = &d
		}
	}
	if t, err := decTime(created); err == nil {
		g.CreatedAt = t
	}
	return g, nil
}

func (s *dbStore) UpdateGoalStatus(ctx context.Context, id uuid.UUID, status model.GoalStatus) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE goals SET status = ? WHERE id = ?`), string(status), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *dbStore) DeleteGoal(ctx context.Context, id uuid.UUID) error {
	// Tasks and their reminders go with it (FK cascade).
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM goals WHERE id = ?`), id.String())
	return err
}

// ---- tasks ----

func (s *dbStore) CreateTasks(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO tasks(id, goal_id, user_id, title, description, date, time_min, duration_min, priority, status, payload, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, t := range tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		payload, err := encPayload(t.Payload)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID.String(), t.GoalID.String(), int64(t.UserID), t.Title, nullStr(t.Description),
			encDate(t.Date), encTimeOfDayPtr(t.Time), int(t.Duration/time.Minute),
			t.Priority, string(t.Status), payload, encTime(t.CreatedAt),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *dbStore) GetTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, s.q(taskColumns+` WHERE id = ?`), id.String())
	return scanTask(row)
}

func (s *dbStore) ListTasksForDate(ctx context.Context, user model.UserID, d model.Date) ([]model.Task, error) {
	return s.listTasks(ctx, s.q(taskColumns+
		` WHERE user_id = ? AND date = ? ORDER BY time_min IS NULL, time_min`),
		int64(user), encDate(d))
}

func (s *dbStore) ListPendingTasks(ctx context.Context, user model.UserID, rng DateRange) ([]model.Task, error) {
	return s.listTasks(ctx, s.q(taskColumns+
		` WHERE user_id = ? AND status = ? AND date >= ? AND date <= ? ORDER BY date, time_min`),
		int64(user), string(model.TaskPending), encDate(rng.From), encDate(rng.To))
}

const taskColumns = `SELECT id, goal_id, user_id, title, description, date, time_min, duration_min, priority, status, payload, created_at FROM tasks`

func (s *dbStore) listTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t        model.Task
		id, gid  string
		uid      int64
		desc     sql.NullString
		date     string
		timeMin  sql.NullInt64
		duration int
		status   string
		payload  sql.NullString
		created  string
	)
	if err := r.Scan(&id, &gid, &uid, &t.Title, &desc, &date, &timeMin, &duration, &t.Priority, &status, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, err
	}
	tid, err := uuid.Parse(id)
	if err != nil {
		return model.Task{}, fmt.Errorf("bad task id %q: %w", id, err)
	}
	goalID, err := uuid.Parse(gid)
	if err != nil {
		return model.Task{}, fmt.Errorf("bad goal id %q: %w", gid, err)
	}
	t.ID = tid
	t.GoalID = goalID
	t.UserID = model.UserID(uid)
	t.Description = desc.String
	if d, err := model.ParseDate(date); err == nil {
		t.Date = d
	}
	if timeMin.Valid {
		tod := model.TimeOfDay(timeMin.Int64)
		t.Time = &tod
	}
	t.Duration = time.Duration(duration) * time.Minute
	t.Status = model.TaskStatus(status)
	if payload.Valid && payload.String != "" {
		_ = json.Unmarshal([]byte(payload.String), &t.Payload)
	}
	if ts, err := decTime(created); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

func (s *dbStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE tasks SET status = ? WHERE id = ?`), string(status), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *dbStore) TaskStatistics(ctx context.Context, user model.UserID) (model.TaskStatistics, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT status, COUNT(*) FROM tasks WHERE user_id = ? GROUP BY status`), int64(user))
	if err != nil {
		return model.TaskStatistics{}, err
	}
	defer rows.Close()

	var stats model.TaskStatistics
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.TaskStatistics{}, err
		}
		switch model.TaskStatus(status) {
		case model.TaskPending:
			stats.Pending = n
		case model.TaskCompleted:
			stats.Completed = n
		case model.TaskSkipped:
			stats.Skipped = n
		case model.TaskRescheduled:
			stats.Rescheduled = n
		}
	}
	return stats, rows.Err()
}

func (s *dbStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tasks WHERE id = ?`), id.String())
	return err
}

// ---- reminders ----

func (s *dbStore) CreateReminder(ctx context.Context, r model.Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO reminders(id, task_id, user_id, at, message, status, attempts, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`),
		r.ID.String(), r.TaskID.String(), int64(r.UserID), encTime(r.At),
		r.Message, string(r.Status), r.Attempts, encTime(r.CreatedAt),
	)
	return err
}

func (s *dbStore) ListDueReminders(ctx context.Context, before time.Time, limit int) ([]model.Reminder, error) {
	query := reminderColumns + ` WHERE status = ? AND at <= ? ORDER BY at`
	args := []any{string(model.ReminderPending), encTime(before)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.listReminders(ctx, s.q(query), args...)
}

func (s *dbStore) ListTaskReminders(ctx context.Context, task uuid.UUID) ([]model.Reminder, error) {
	return s.listReminders(ctx, s.q(reminderColumns+` WHERE task_id = ? ORDER BY at`), task.String())
}

const reminderColumns = `SELECT id, task_id, user_id, at, message, status, attempts, sent_at, created_at FROM reminders`

func (s *dbStore) listReminders(ctx context.Context, query string, args ...any) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		var (
			r       model.Reminder
			id, tid string
			uid     int64
			at      string
			status  string
			sentAt  sql.NullString
			created string
		)
		if err := rows.Scan(&id, &tid, &uid, &at, &r.Message, &status, &r.Attempts, &sentAt, &created); err != nil {
			return nil, err
		}
		rid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("bad reminder id %q: %w", id, err)
		}
		taskID, err := uuid.Parse(tid)
		if err != nil {
			return nil, fmt.Errorf("bad task id %q: %w", tid, err)
		}
		r.ID = rid
		r.TaskID = taskID
		r.UserID = model.UserID(uid)
		if t, err := decTime(at); err == nil {
			r.At = t
		}
		r.Status = model.ReminderStatus(status)
		if sentAt.Valid {
			if t, err := decTime(sentAt.String); err == nil {
				r.SentAt = &t
			}
		}
		if t, err := decTime(created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *dbStore) UpdateReminderStatusCAS(ctx context.Context, id uuid.UUID, from, to model.ReminderStatus, attempts int) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if to == model.ReminderSent {
		res, err = s.db.ExecContext(ctx, s.q(
			`UPDATE reminders SET status = ?, attempts = ?, sent_at = ? WHERE id = ? AND status = ?`),
			string(to), attempts, encTime(time.Now()), id.String(), string(from))
	} else {
		res, err = s.db.ExecContext(ctx, s.q(
			`UPDATE reminders SET status = ?, attempts = ? WHERE id = ? AND status = ?`),
			string(to), attempts, id.String(), string(from))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *dbStore) CancelTaskReminders(ctx context.Context, task uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE reminders SET status = ? WHERE task_id = ? AND status = ?`),
		string(model.ReminderCancelled), task.String(), string(model.ReminderPending))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
