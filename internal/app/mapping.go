package app

import (
	"fmt"
	"strings"
	"time"

	"planbot/internal/config"
	"planbot/internal/content"
	"planbot/internal/model"
	"planbot/internal/notifier"
	"planbot/internal/plan"
	"planbot/internal/reminder"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

// mapStorageConfig maps the on-disk config (duration strings) into the
// runtime storage.Config (parsed durations).
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	var out storage.Config
	if cfg == nil {
		return out, nil
	}
	out.Driver = strings.TrimSpace(cfg.Storage.Driver)
	out.Path = strings.TrimSpace(cfg.Storage.Path)
	out.DSN = strings.TrimSpace(cfg.Storage.DSN)

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return out, err
	}
	out.BusyTimeout = busy

	if out.Driver == "" {
		out.Driver = "sqlite"
	}
	if out.Driver == "sqlite" && out.Path == "" {
		out.Path = "./planbot.db"
	}
	if out.Driver == "postgres" && out.DSN == "" {
		return out, fmt.Errorf("storage.dsn required for postgres")
	}
	return out, nil
}

func mapPlannerConfig(cfg *config.Config) (plan.Config, error) {
	var out plan.Config
	if cfg == nil {
		return out, nil
	}
	out.HorizonDays = cfg.Planner.HorizonDays

	if s := strings.TrimSpace(cfg.Planner.DayStart); s != "" {
		t, err := model.ParseTimeOfDay(s)
		if err != nil {
			return out, fmt.Errorf("planner.day_start: %w", err)
		}
		out.DayStart = t
	}
	if s := strings.TrimSpace(cfg.Planner.DayEnd); s != "" {
		t, err := model.ParseTimeOfDay(s)
		if err != nil {
			return out, fmt.Errorf("planner.day_end: %w", err)
		}
		out.DayEnd = t
	}

	minW, err := config.ParseDurationField("planner.min_window", cfg.Planner.MinWindow)
	if err != nil {
		return out, err
	}
	out.MinWindow = minW
	return out, nil
}

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	// Omitted means enabled.
	out := reminder.Config{Enabled: true}
	if cfg == nil {
		return out, nil
	}
	r := cfg.Reminder
	if r.Enabled != nil {
		out.Enabled = *r.Enabled
	}
	out.RetryMax = r.RetryMax
	out.BatchLimit = r.BatchLimit
	out.DailySummaryHour = r.DailySummaryHour
	out.WeeklySummarySpec = strings.TrimSpace(r.WeeklySummarySpec)

	type durField struct {
		key string
		raw string
		dst *time.Duration
	}
	for _, f := range []durField{
		{"reminder.lead", r.Lead, &out.Lead},
		{"reminder.check_every", r.CheckEvery, &out.CheckEvery},
		{"reminder.due_lookahead", r.DueLookahead, &out.DueLookahead},
		{"reminder.retry_base", r.RetryBase, &out.RetryBase},
		{"reminder.retry_max_delay", r.RetryMaxDelay, &out.RetryMaxDelay},
		{"reminder.stale_after", r.StaleAfter, &out.StaleAfter},
	} {
		d, err := config.ParseDurationField(f.key, f.raw)
		if err != nil {
			return reminder.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	out := notifier.Config{Enabled: true}
	if cfg != nil {
		out.RatePerSec = cfg.Notifier.RatePerSec
	}
	return out
}

// newContentProvider selects the candidate-task source. Unset provider
// falls back to openrouter when an API key is present, else static.
func newContentProvider(cfg *config.Config, log logx.Logger) (content.Provider, error) {
	name := ""
	var cc config.ContentConfig
	if cfg != nil {
		cc = cfg.Content
		name = strings.ToLower(strings.TrimSpace(cc.Provider))
	}
	if name == "" {
		if strings.TrimSpace(cc.APIKey) != "" {
			name = "openrouter"
		} else {
			name = "static"
		}
	}

	switch name {
	case "openrouter":
		timeout, err := config.ParseDurationField("content.timeout", cc.Timeout)
		if err != nil {
			return nil, err
		}
		return content.NewOpenRouter(content.OpenRouterConfig{
			APIKey:  strings.TrimSpace(cc.APIKey),
			Model:   strings.TrimSpace(cc.Model),
			BaseURL: strings.TrimSpace(cc.BaseURL),
			Timeout: timeout,
		}, log)
	case "static":
		return content.Static{}, nil
	default:
		return nil, fmt.Errorf("content.provider: unknown %q", name)
	}
}
