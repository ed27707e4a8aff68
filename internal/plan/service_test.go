package plan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"planbot/internal/content"
	"planbot/internal/eventbus"
	"planbot/internal/model"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

type fakeStore struct {
	storage.Store

	mu      sync.Mutex
	user    model.User
	goals   []model.Goal
	blocks  []model.WeeklyBlock
	events  []model.SpecialEvent
	tasks   map[uuid.UUID]model.Task
	created int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		user:  model.User{ID: 1, Timezone: "UTC", Active: true},
		tasks: map[uuid.UUID]model.Task{},
	}
}

func (f *fakeStore) GetUser(_ context.Context, id model.UserID) (model.User, error) {
	if id != f.user.ID {
		return model.User{}, storage.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeStore) ListActiveGoals(context.Context, model.UserID) ([]model.Goal, error) {
	return f.goals, nil
}

func (f *fakeStore) ListWeeklyBlocks(context.Context, model.UserID) ([]model.WeeklyBlock, error) {
	return f.blocks, nil
}

func (f *fakeStore) ListSpecialEvents(context.Context, model.UserID, storage.DateRange) ([]model.SpecialEvent, error) {
	return f.events, nil
}

func (f *fakeStore) ListPendingTasks(_ context.Context, user model.UserID, rng storage.DateRange) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Task
	for _, t := range f.tasks {
		if t.UserID == user && t.Status == model.TaskPending &&
			!t.Date.Before(rng.From) && !t.Date.After(rng.To) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTasks(_ context.Context, tasks []model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	f.created += len(tasks)
	return nil
}

func (f *fakeStore) GetTask(_ context.Context, id uuid.UUID) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return model.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status model.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = status
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) statusCount(status model.TaskStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled int
	cancelled []uuid.UUID
}

func (f *fakeScheduler) Schedule(_ context.Context, task model.Task, _ model.User) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled++
	return 1, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

type fakeProvider struct {
	cands []content.Candidate
	err   error
}

func (f fakeProvider) Tasks(context.Context, model.Goal, int) ([]content.Candidate, error) {
	return f.cands, f.err
}

type providerFunc func(model.Goal) ([]content.Candidate, error)

func (f providerFunc) Tasks(_ context.Context, g model.Goal, _ int) ([]content.Candidate, error) {
	return f(g)
}

var today = model.Date{Year: 2026, Month: 8, Day: 26}

func newTestService(store *fakeStore, provider content.Provider, sched Scheduler) *Service {
	s := New(Config{HorizonDays: 7}, store, provider, sched, eventbus.New(), logx.Nop())
	s.now = func() time.Time { return time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC) }
	return s
}

func activeGoal(prio int) model.Goal {
	return model.Goal{ID: uuid.New(), UserID: 1, Title: "goal", Priority: prio, Status: model.GoalActive}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.goals = []model.Goal{activeGoal(3)}
	provider := fakeProvider{cands: []content.Candidate{
		{Title: "one", Duration: time.Hour, Priority: 3},
		{Title: "two", Duration: 90 * time.Minute, Priority: 3},
	}}
	sched := &fakeScheduler{}

	res, err := newTestService(store, provider, sched).Generate(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Placed != 2 || res.Unplaceable() != 0 {
		t.Fatalf("result: %+v", res)
	}
	if res.Partial() {
		t.Error("unexpected partial flag")
	}
	if res.From != today || res.To != today.AddDays(6) {
		t.Errorf("horizon: %v..%v", res.From, res.To)
	}
	if store.created != 2 {
		t.Errorf("persisted %d tasks", store.created)
	}
	if sched.scheduled != 2 || res.Reminders != 2 {
		t.Errorf("reminders: scheduled=%d result=%d", sched.scheduled, res.Reminders)
	}
}

func TestGenerateVoidsPreviousPlan(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.goals = []model.Goal{activeGoal(3)}

	old := model.Task{ID: uuid.New(), UserID: 1, Title: "old", Date: today.AddDays(1), Status: model.TaskPending}
	done := model.Task{ID: uuid.New(), UserID: 1, Title: "done", Date: today.AddDays(1), Status: model.TaskCompleted}
	outside := model.Task{ID: uuid.New(), UserID: 1, Title: "outside", Date: today.AddDays(20), Status: model.TaskPending}
	for _, tk := range []model.Task{old, done, outside} {
		store.tasks[tk.ID] = tk
	}

	sched := &fakeScheduler{}
	provider := fakeProvider{cands: []content.Candidate{{Title: "new", Duration: time.Hour, Priority: 3}}}
	res, err := newTestService(store, provider, sched).Generate(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Voided != 1 {
		t.Fatalf("voided: %d, want 1", res.Voided)
	}
	if got := store.tasks[old.ID].Status; got != model.TaskRescheduled {
		t.Errorf("old task: %s", got)
	}
	if got := store.tasks[done.ID].Status; got != model.TaskCompleted {
		t.Errorf("completed task touched: %s", got)
	}
	if got := store.tasks[outside.ID].Status; got != model.TaskPending {
		t.Errorf("out-of-horizon task touched: %s", got)
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != old.ID {
		t.Errorf("cancelled: %v", sched.cancelled)
	}
}

func TestGenerateConcurrentRejected(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.goals = []model.Goal{activeGoal(3)}
	s := newTestService(store, fakeProvider{}, &fakeScheduler{})

	lock := s.userLock(1)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.Generate(context.Background(), 1, 7); !errors.Is(err, ErrPlanInProgress) {
		t.Fatalf("got %v, want ErrPlanInProgress", err)
	}
}

func TestGenerateNoGoals(t *testing.T) {
	t.Parallel()

	s := newTestService(newFakeStore(), fakeProvider{}, &fakeScheduler{})
	if _, err := s.Generate(context.Background(), 1, 7); !errors.Is(err, ErrNoGoals) {
		t.Fatalf("got %v, want ErrNoGoals", err)
	}
}

func TestGeneratePartialPlan(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.goals = []model.Goal{activeGoal(3)}
	// A block per weekday leaves only one-hour windows at the day edges.
	for wd := 0; wd < 7; wd++ {
		store.blocks = append(store.blocks, model.WeeklyBlock{
			Weekday: wd,
			Start:   model.TimeOfDay(7 * 60),
			End:     model.TimeOfDay(22 * 60),
		})
	}
	var cands []content.Candidate
	for i := 0; i < 3; i++ {
		cands = append(cands, content.Candidate{Title: "c", Duration: 2 * time.Hour, Priority: 3})
	}

	res, err := newTestService(store, fakeProvider{cands: cands}, &fakeScheduler{}).
		Generate(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Placed != 0 || res.Unplaceable() != 3 {
		t.Fatalf("result: placed=%d unplaceable=%d", res.Placed, res.Unplaceable())
	}
	if !res.Partial() {
		t.Error("partial flag not set")
	}
	if len(res.Goals) != 1 || res.Goals[0].Unplaceable != 3 {
		t.Errorf("goal outcome: %+v", res.Goals)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.goals = []model.Goal{activeGoal(3)}
	s := newTestService(store, fakeProvider{err: errors.New("upstream down")}, &fakeScheduler{})
	if _, err := s.Generate(context.Background(), 1, 7); err == nil {
		t.Fatal("total provider failure accepted")
	}
}

func TestGenerateKeepsTasksOfFailedGoal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	good := model.Goal{ID: uuid.New(), UserID: 1, Title: "good", Priority: 3, Status: model.GoalActive}
	bad := model.Goal{ID: uuid.New(), UserID: 1, Title: "bad", Priority: 3, Status: model.GoalActive}
	store.goals = []model.Goal{good, bad}

	goodOld := model.Task{ID: uuid.New(), GoalID: good.ID, UserID: 1, Title: "go", Date: today.AddDays(1), Status: model.TaskPending}
	badOld := model.Task{ID: uuid.New(), GoalID: bad.ID, UserID: 1, Title: "bo", Date: today.AddDays(1), Status: model.TaskPending}
	store.tasks[goodOld.ID] = goodOld
	store.tasks[badOld.ID] = badOld

	provider := providerFunc(func(g model.Goal) ([]content.Candidate, error) {
		if g.ID == bad.ID {
			return nil, errors.New("upstream down")
		}
		return []content.Candidate{{Title: "new", Duration: time.Hour, Priority: 3}}, nil
	})
	sched := &fakeScheduler{}

	res, err := newTestService(store, provider, sched).Generate(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.Partial() {
		t.Error("partial flag not set")
	}
	var badOut GoalOutcome
	for _, g := range res.Goals {
		if g.GoalID == bad.ID {
			badOut = g
		}
	}
	if !badOut.Failed || !badOut.Partial() {
		t.Errorf("failed goal outcome: %+v", badOut)
	}

	// The failed goal's previous schedule survives untouched.
	if got := store.tasks[badOld.ID].Status; got != model.TaskPending {
		t.Errorf("failed goal's task: %s", got)
	}
	for _, id := range sched.cancelled {
		if id == badOld.ID {
			t.Error("failed goal's reminders cancelled")
		}
	}
	// The healthy goal is still replanned.
	if got := store.tasks[goodOld.ID].Status; got != model.TaskRescheduled {
		t.Errorf("healthy goal's task: %s", got)
	}
	if res.Voided != 1 {
		t.Errorf("voided: %d, want 1", res.Voided)
	}
}

func TestCompleteAndSkip(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := &fakeScheduler{}
	s := newTestService(store, fakeProvider{}, sched)

	task := model.Task{ID: uuid.New(), UserID: 1, Title: "t", Date: today, Status: model.TaskPending}
	other := model.Task{ID: uuid.New(), UserID: 2, Title: "o", Date: today, Status: model.TaskPending}
	store.tasks[task.ID] = task
	store.tasks[other.ID] = other

	got, err := s.Complete(context.Background(), 1, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != model.TaskCompleted {
		t.Errorf("status: %s", got.Status)
	}
	if len(sched.cancelled) != 1 {
		t.Errorf("reminders not cancelled")
	}

	// Already completed.
	if _, err := s.Skip(context.Background(), 1, task.ID); err == nil {
		t.Error("skip of completed task accepted")
	}
	// Someone else's task.
	if _, err := s.Complete(context.Background(), 1, other.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign task: %v", err)
	}
}
