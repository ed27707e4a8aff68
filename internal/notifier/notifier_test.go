package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"planbot/internal/model"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	fail error
	docs int
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, _ int64, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeAdapter) SendDocument(_ context.Context, _ int64, _ string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs++
	return nil
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	s := New(Config{Enabled: true, RatePerSec: 100}, fa, logx.Nop())

	if err := s.Deliver(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(fa.sent) != 1 || fa.sent[0] != "hi" {
		t.Fatalf("sent: %v", fa.sent)
	}
}

func TestDeliverDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: false}, &fakeAdapter{}, logx.Nop())
	if err := s.Deliver(context.Background(), 1, "hi", nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("got %v, want ErrDisabled", err)
	}

	// Re-enable live.
	s.Apply(Config{Enabled: true, RatePerSec: 100})
	if err := s.Deliver(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("after apply: %v", err)
	}
}

func TestDeliverPropagatesSendError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	s := New(Config{Enabled: true, RatePerSec: 100}, &fakeAdapter{fail: wantErr}, logx.Nop())
	if err := s.Deliver(context.Background(), 1, "hi", nil); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestFormatReminder(t *testing.T) {
	t.Parallel()

	at := model.TimeOfDay(9 * 60)
	task := model.Task{
		Title:    "Write chapter 3",
		Time:     &at,
		Duration: 90 * time.Minute,
		Payload:  model.TaskPayload{Rationale: "momentum from yesterday"},
	}
	got := FormatReminder(task)
	for _, want := range []string{"Write chapter 3", "09:00", "90 minutes", "momentum from yesterday"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatDailyAgenda(t *testing.T) {
	t.Parallel()

	day := model.Date{Year: 2026, Month: 8, Day: 26}
	empty := FormatDailyAgenda(day, nil, time.UTC)
	if !strings.Contains(empty, "no scheduled tasks") {
		t.Errorf("empty agenda:\n%s", empty)
	}

	at := model.TimeOfDay(10 * 60)
	tasks := []model.Task{
		{Title: "first", Time: &at},
		{Title: "floating"},
	}
	got := FormatDailyAgenda(day, tasks, time.UTC)
	for _, want := range []string{"Wednesday, August 26", "1. 10:00 - first", "2. All day - floating", "Total: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatWeeklyStats(t *testing.T) {
	t.Parallel()

	got := FormatWeeklyStats(model.TaskStatistics{Completed: 8, Pending: 1, Skipped: 1})
	if !strings.Contains(got, "80.0%") {
		t.Errorf("rate missing:\n%s", got)
	}
	if !strings.Contains(got, "Excellent work") {
		t.Errorf("praise tier missing:\n%s", got)
	}
}
