package config

// Config is the full on-disk configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON and decoded strictly
// (unknown fields are rejected). All duration-ish fields are Go duration
// strings (e.g. "500ms", "15m", "1h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Planner  PlannerConfig  `json:"planner"`
	Reminder ReminderConfig `json:"reminder"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Content  ContentConfig  `json:"content"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"` // default "10s"
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    FileLoggingConfig `json:"file"`
}

type FileLoggingConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "sqlite": local SQLite database file (Path)
//   - "postgres": PostgreSQL via DSN
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PlannerConfig controls plan generation and the availability day bound.
//
// Defaults (when fields are omitted/zero):
//   - horizon_days: 30
//   - day_start: "06:00"
//   - day_end: "23:00"
//   - min_window: "15m"
type PlannerConfig struct {
	HorizonDays int    `json:"horizon_days,omitempty"`
	DayStart    string `json:"day_start,omitempty"`
	DayEnd      string `json:"day_end,omitempty"`
	MinWindow   string `json:"min_window,omitempty"`
}

// ReminderConfig controls reminder derivation and the dispatch loop.
//
// Defaults:
//   - lead: "15m" before task start
//   - check_every: "1m" dispatch tick
//   - due_lookahead: "0" (opt-in; pulls near-due reminders into the tick,
//     delivery still waits for each reminder's instant)
//   - retry_max: 3, retry_base: "500ms", retry_max_delay: "10s"
//   - stale_after: "24h" (pending this long past due goes straight to failed)
//   - batch_limit: 100 reminders per tick
//   - daily_summary_hour: 7 (user-local)
//   - weekly_summary_spec: "0 20 * * 0" (UTC)
type ReminderConfig struct {
	Enabled           *bool  `json:"enabled,omitempty"` // omitted means enabled
	Lead              string `json:"lead,omitempty"`
	CheckEvery        string `json:"check_every,omitempty"`
	DueLookahead      string `json:"due_lookahead,omitempty"`
	RetryMax          int    `json:"retry_max,omitempty"`
	RetryBase         string `json:"retry_base,omitempty"`
	RetryMaxDelay     string `json:"retry_max_delay,omitempty"`
	StaleAfter        string `json:"stale_after,omitempty"`
	BatchLimit        int    `json:"batch_limit,omitempty"`
	DailySummaryHour  int    `json:"daily_summary_hour,omitempty"`
	WeeklySummarySpec string `json:"weekly_summary_spec,omitempty"`
}

type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"` // default 3
}

// ContentConfig selects the content-authoring collaborator.
//
// Provider values:
//   - "openrouter": LLM-backed candidate tasks (requires api_key)
//   - "static": deterministic per-goal work sessions (no network)
type ContentConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default "60s"
}
