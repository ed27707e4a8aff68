// Package reminder schedules timezone-correct reminder instants for
// planned tasks and dispatches the ones that come due.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"planbot/internal/eventbus"
	"planbot/internal/model"
	"planbot/internal/notifier"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

type Config struct {
	Enabled bool

	// Lead is how long before the task start the reminder fires.
	Lead time.Duration
	// CheckEvery is the dispatch tick interval.
	CheckEvery time.Duration
	// DueLookahead optionally pulls reminders due slightly in the future
	// so a tick boundary never delays one past its instant. Delivery
	// still waits for the instant itself; zero disables the lookahead.
	DueLookahead time.Duration

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// StaleAfter marks reminders this far past due as failed without
	// delivering them.
	StaleAfter time.Duration

	// BatchLimit caps how many due reminders one tick processes.
	BatchLimit int

	// DailySummaryHour is the user-local hour for the morning agenda.
	DailySummaryHour int
	// WeeklySummarySpec is a cron expression in UTC.
	WeeklySummarySpec string
}

func (c Config) withDefaults() Config {
	if c.Lead <= 0 {
		c.Lead = 15 * time.Minute
	}
	if c.CheckEvery <= 0 {
		c.CheckEvery = time.Minute
	}
	if c.DueLookahead < 0 {
		c.DueLookahead = 0
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	} else if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.DailySummaryHour <= 0 || c.DailySummaryHour > 23 {
		c.DailySummaryHour = 7
	}
	if c.WeeklySummarySpec == "" {
		c.WeeklySummarySpec = "0 20 * * 0" // Sunday 20:00 UTC
	}
	return c
}

// Service owns reminder rows end to end: creation at plan time, CAS
// status transitions at dispatch time, and the periodic summary jobs.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	running bool
	c       *cron.Cron

	log   logx.Logger
	store storage.Store
	notif *notifier.Service
	bus   eventbus.Bus

	// Markup optionally builds adapter-specific quick-action markup for a
	// task reminder. Set once at wiring time, before Start.
	Markup func(taskID uuid.UUID) any

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, store storage.Store, notif *notifier.Service, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		store: store,
		notif: notif,
		bus:   bus,
		now:   time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates the tunables. Interval and summary schedule changes take
// effect on next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Schedule creates the reminders for a placed task: one Lead before the
// start instant, and for high-priority tasks another a day before.
// Instants are derived from the task's local date and time in the user's
// zone, so DST transitions land on the correct UTC instant. Instants
// already in the past are skipped; a task without a time component gets no
// reminders.
func (s *Service) Schedule(ctx context.Context, task model.Task, user model.User) (int, error) {
	if task.Time == nil {
		return 0, nil
	}
	cfg := s.config()
	loc := user.Location()
	start := task.Date.At(*task.Time, loc).UTC()
	now := s.now().UTC()

	created := 0
	add := func(at time.Time, msg string) error {
		if !at.After(now) {
			return nil
		}
		err := s.store.CreateReminder(ctx, model.Reminder{
			ID:      uuid.New(),
			TaskID:  task.ID,
			UserID:  task.UserID,
			At:      at,
			Message: msg,
			Status:  model.ReminderPending,
		})
		if err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
		created++
		return nil
	}

	if err := add(start.Add(-cfg.Lead), notifier.FormatReminder(task)); err != nil {
		return created, err
	}
	if task.Priority >= 4 {
		if err := add(start.Add(-24*time.Hour), notifier.FormatDayBefore(task)); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Cancel voids the pending reminders of a task. Idempotent; sent and
// failed reminders keep their status.
func (s *Service) Cancel(ctx context.Context, taskID uuid.UUID) error {
	n, err := s.store.CancelTaskReminders(ctx, taskID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderCanceled,
			Data: map[string]any{"task": taskID.String(), "count": n},
		})
	}
	return nil
}

// cronLog routes robfig/cron errors into our logger.
type cronLog struct{ log logx.Logger }

func (c cronLog) Info(string, ...any) {}
func (c cronLog) Error(err error, msg string, _ ...any) {
	c.log.Error("cron: "+msg, logx.Err(err))
}

func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("reminder service disabled")
		return nil
	}

	clog := cronLog{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.CheckEvery), func() {
		s.dispatchTick(ctx)
	}); err != nil {
		return fmt.Errorf("register dispatch tick: %w", err)
	}
	if _, err := c.AddFunc("@hourly", func() {
		s.sendDailySummaries(ctx)
	}); err != nil {
		return fmt.Errorf("register daily summary: %w", err)
	}
	if _, err := c.AddFunc(s.cfg.WeeklySummarySpec, func() {
		s.sendWeeklySummaries(ctx)
	}); err != nil {
		return fmt.Errorf("register weekly summary: %w", err)
	}

	c.Start()
	s.c = c
	s.running = true
	s.log.Info("reminder service started",
		logx.Duration("check_every", s.cfg.CheckEvery),
		logx.Duration("lead", s.cfg.Lead))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	done := c.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
