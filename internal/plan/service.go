// Package plan turns active goals into a concrete day-by-day task plan.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"planbot/internal/content"
	"planbot/internal/eventbus"
	"planbot/internal/model"
	"planbot/internal/plan/allocator"
	"planbot/internal/plan/availability"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

var (
	// ErrPlanInProgress is returned when a generation for the same user is
	// already running.
	ErrPlanInProgress = errors.New("plan generation already in progress")
	ErrNoGoals        = errors.New("no active goals")
)

type Config struct {
	HorizonDays int
	DayStart    model.TimeOfDay
	DayEnd      model.TimeOfDay
	MinWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.HorizonDays > 30 {
		c.HorizonDays = 30
	}
	return c
}

// Scheduler is the slice of the reminder service the planner needs.
type Scheduler interface {
	Schedule(ctx context.Context, task model.Task, user model.User) (int, error)
	Cancel(ctx context.Context, taskID uuid.UUID) error
}

// GoalOutcome reports placement per goal so partial plans are visible to
// the user instead of silently dropping work.
type GoalOutcome struct {
	GoalID      uuid.UUID
	Title       string
	Placed      int
	Unplaceable int
	Failed      bool // candidate generation failed; previous tasks kept
}

func (g GoalOutcome) Partial() bool { return g.Unplaceable > 0 || g.Failed }

// Result summarizes one generation run.
type Result struct {
	From, To  model.Date
	Placed    int
	Voided    int
	Reminders int
	Goals     []GoalOutcome
}

func (r Result) Partial() bool {
	for _, g := range r.Goals {
		if g.Partial() {
			return true
		}
	}
	return false
}

func (r Result) Unplaceable() int {
	n := 0
	for _, g := range r.Goals {
		n += g.Unplaceable
	}
	return n
}

// Service generates and maintains user plans. Generation is serialized
// per user; task completion operations are lock-free.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log      logx.Logger
	store    storage.Store
	provider content.Provider
	sched    Scheduler
	bus      eventbus.Bus

	lockMu sync.Mutex
	locks  map[model.UserID]*sync.Mutex

	now func() time.Time
}

func New(cfg Config, store storage.Store, provider content.Provider, sched Scheduler, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		store:    store,
		provider: provider,
		sched:    sched,
		bus:      bus,
		locks:    map[model.UserID]*sync.Mutex{},
		now:      time.Now,
	}
}

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

func (s *Service) userLock(id model.UserID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Generate builds a fresh plan for the user over the horizon. Previously
// pending tasks inside the horizon are marked rescheduled and their
// reminders cancelled before the new plan is persisted, so re-planning
// never duplicates work. Completed and skipped tasks are never touched.
func (s *Service) Generate(ctx context.Context, userID model.UserID, horizonDays int) (Result, error) {
	lock := s.userLock(userID)
	if !lock.TryLock() {
		return Result{}, ErrPlanInProgress
	}
	defer lock.Unlock()

	cfg := s.config()
	if horizonDays <= 0 {
		horizonDays = cfg.HorizonDays
	}
	if horizonDays > 30 {
		horizonDays = 30
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load user: %w", err)
	}
	goals, err := s.store.ListActiveGoals(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load goals: %w", err)
	}
	if len(goals) == 0 {
		return Result{}, ErrNoGoals
	}

	loc := user.Location()
	from := model.DateOf(s.now().In(loc))
	to := from.AddDays(horizonDays - 1)
	rng := storage.DateRange{From: from, To: to}
	res := Result{From: from, To: to}

	blocks, err := s.store.ListWeeklyBlocks(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("load weekly blocks: %w", err)
	}
	events, err := s.store.ListSpecialEvents(ctx, userID, rng)
	if err != nil {
		return res, fmt.Errorf("load special events: %w", err)
	}
	windows := availability.FreeWindows(blocks, events, from, to, availability.Options{
		DayStart:  cfg.DayStart,
		DayEnd:    cfg.DayEnd,
		MinWindow: cfg.MinWindow,
	})

	// Candidate collection. A single failing goal degrades to a partial
	// plan rather than failing the run; a total provider failure is fatal.
	var (
		reqs       []allocator.Task
		goalByID   = map[uuid.UUID]*GoalOutcome{}
		anyContent bool
	)
	// Preallocated so the outcome pointers below stay valid.
	res.Goals = make([]GoalOutcome, 0, len(goals))
	for i := range goals {
		g := goals[i]
		res.Goals = append(res.Goals, GoalOutcome{GoalID: g.ID, Title: g.Title})
		goalByID[g.ID] = &res.Goals[len(res.Goals)-1]

		cands, err := s.provider.Tasks(ctx, g, horizonDays)
		if err != nil {
			s.log.Warn("candidate generation failed",
				logx.String("goal", g.ID.String()), logx.Err(err))
			goalByID[g.ID].Failed = true
			continue
		}
		anyContent = true
		for _, c := range cands {
			// A preferred date tightens the goal deadline for this one
			// candidate, pulling it toward that day in the sort order.
			target := g.TargetDate
			if c.Preferred != nil && (target == nil || c.Preferred.Before(*target)) {
				target = c.Preferred
			}
			reqs = append(reqs, allocator.Task{
				GoalID:      g.ID,
				Title:       c.Title,
				Description: c.Description,
				Duration:    c.Duration,
				Priority:    c.Priority,
				TargetDate:  target,
			})
		}
	}
	if !anyContent {
		return res, errors.New("no goal produced candidates")
	}

	// Void the previous plan inside the horizon. Tasks of a goal whose
	// candidate generation failed keep their old schedule: replacing
	// something with nothing would silently lose the goal's plan.
	pending, err := s.store.ListPendingTasks(ctx, userID, rng)
	if err != nil {
		return res, fmt.Errorf("load pending tasks: %w", err)
	}
	for _, t := range pending {
		if out, ok := goalByID[t.GoalID]; ok && out.Failed {
			continue
		}
		if err := s.sched.Cancel(ctx, t.ID); err != nil {
			return res, fmt.Errorf("cancel reminders: %w", err)
		}
		if err := s.store.UpdateTaskStatus(ctx, t.ID, model.TaskRescheduled); err != nil {
			return res, fmt.Errorf("void task: %w", err)
		}
		res.Voided++
	}

	alloc := allocator.Allocate(windows, reqs, from, to)

	tasks := make([]model.Task, 0, len(alloc.Placements))
	for _, p := range alloc.Placements {
		start := p.Start
		tasks = append(tasks, model.Task{
			ID:          uuid.New(),
			GoalID:      p.Task.GoalID,
			UserID:      userID,
			Title:       p.Task.Title,
			Description: p.Task.Description,
			Date:        p.Date,
			Time:        &start,
			Duration:    p.Task.Duration,
			Priority:    p.Task.Priority,
			Status:      model.TaskPending,
			Payload:     model.TaskPayload{Version: model.PayloadVersion},
		})
		if g := goalByID[p.Task.GoalID]; g != nil {
			g.Placed++
		}
	}
	for _, u := range alloc.Unplaceable {
		if g := goalByID[u.GoalID]; g != nil {
			g.Unplaceable++
		}
	}
	res.Placed = len(tasks)

	if err := s.store.CreateTasks(ctx, tasks); err != nil {
		return res, fmt.Errorf("persist plan: %w", err)
	}
	for _, t := range tasks {
		n, err := s.sched.Schedule(ctx, t, user)
		if err != nil {
			s.log.Warn("reminder scheduling failed",
				logx.String("task", t.ID.String()), logx.Err(err))
			continue
		}
		res.Reminders += n
	}

	evType := eventbus.TypePlanGenerated
	if res.Partial() {
		evType = eventbus.TypePlanPartial
	}
	s.bus.Publish(eventbus.Event{Type: evType, Data: map[string]any{
		"user":        int64(userID),
		"placed":      res.Placed,
		"unplaceable": res.Unplaceable(),
		"voided":      res.Voided,
	}})
	s.log.Info("plan generated",
		logx.Int64("user", int64(userID)),
		logx.Int("placed", res.Placed),
		logx.Int("unplaceable", res.Unplaceable()),
		logx.Int("voided", res.Voided),
		logx.Bool("partial", res.Partial()))
	return res, nil
}

// Complete marks a task done and drops its outstanding reminders.
func (s *Service) Complete(ctx context.Context, userID model.UserID, taskID uuid.UUID) (model.Task, error) {
	return s.finish(ctx, userID, taskID, model.TaskCompleted)
}

// Skip marks a task skipped and drops its outstanding reminders.
func (s *Service) Skip(ctx context.Context, userID model.UserID, taskID uuid.UUID) (model.Task, error) {
	return s.finish(ctx, userID, taskID, model.TaskSkipped)
}

func (s *Service) finish(ctx context.Context, userID model.UserID, taskID uuid.UUID, status model.TaskStatus) (model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.UserID != userID {
		return model.Task{}, storage.ErrNotFound
	}
	if task.Status != model.TaskPending {
		return model.Task{}, fmt.Errorf("task is %s, not pending", task.Status)
	}
	if err := s.store.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return model.Task{}, err
	}
	if err := s.sched.Cancel(ctx, taskID); err != nil {
		s.log.Warn("reminder cancel failed",
			logx.String("task", taskID.String()), logx.Err(err))
	}
	task.Status = status
	return task, nil
}
