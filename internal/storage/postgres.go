package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	logx "planbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGINT PRIMARY KEY,
	username   TEXT,
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weekly_blocks (
	id        BIGSERIAL PRIMARY KEY,
	user_id   BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	weekday   INTEGER NOT NULL,
	start_min INTEGER NOT NULL,
	end_min   INTEGER NOT NULL,
	activity  TEXT
);
CREATE INDEX IF NOT EXISTS idx_weekly_blocks_user ON weekly_blocks(user_id, weekday);

CREATE TABLE IF NOT EXISTS special_events (
	id                BIGSERIAL PRIMARY KEY,
	user_id           BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title             TEXT,
	date              TEXT NOT NULL,
	start_min         INTEGER NOT NULL DEFAULT 0,
	end_min           INTEGER NOT NULL DEFAULT 0,
	all_day           BOOLEAN NOT NULL DEFAULT FALSE,
	blocks_scheduling BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_special_events_user_date ON special_events(user_id, date);

CREATE TABLE IF NOT EXISTS goals (
	id          TEXT PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
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
	user_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
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
	user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
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

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres driver requires a dsn")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	log.Info("postgres store opened")
	return &dbStore{db: db, log: log, pg: true}, nil
}
