package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	logx "planbot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY,
	username   TEXT,
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	active     BOOLEAN NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weekly_blocks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	weekday   INTEGER NOT NULL,
	start_min INTEGER NOT NULL,
	end_min   INTEGER NOT NULL,
	activity  TEXT
);
CREATE INDEX IF NOT EXISTS idx_weekly_blocks_user ON weekly_blocks(user_id, weekday);

CREATE TABLE IF NOT EXISTS special_events (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title             TEXT,
	date              TEXT NOT NULL,
	start_min         INTEGER NOT NULL DEFAULT 0,
	end_min           INTEGER NOT NULL DEFAULT 0,
	all_day           BOOLEAN NOT NULL DEFAULT 0,
	blocks_scheduling BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_special_events_user_date ON special_events(user_id, date);

CREATE TABLE IF NOT EXISTS goals (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT,
	priority    INTEGER NOT NULL DEFAULT 3,
	target_date TEXT,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goals_user_status ON goals(user_id, status);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	goal_id      TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
	user_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	description  TEXT,
	date         TEXT NOT NULL,
	time_min     INTEGER,
	duration_min INTEGER NOT NULL DEFAULT 0,
	priority     INTEGER NOT NULL DEFAULT 3,
	status       TEXT NOT NULL DEFAULT 'pending',
	payload      TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_date_status ON tasks(user_id, date, status);

CREATE TABLE IF NOT EXISTS reminders (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	at         TEXT NOT NULL,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	attempts   INTEGER NOT NULL DEFAULT 0,
	sent_at    TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_status_at ON reminders(status, at);
CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_id);
`

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "planbot.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.Itoa(int(busy/time.Millisecond))+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer keeps WAL simple and avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	log.Info("sqlite store opened", logx.String("path", path))
	return &dbStore{db: db, log: log}, nil
}
