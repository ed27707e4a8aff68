package reminder

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"planbot/internal/eventbus"
	"planbot/internal/model"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

// dispatchTick processes one batch of due reminders, oldest first. Every
// status transition is a compare-and-set from pending, so a racing
// dispatcher (overlapping tick, second process) can never deliver the
// same reminder twice: only the winner of the CAS gets to keep its work.
func (s *Service) dispatchTick(ctx context.Context) {
	cfg := s.config()
	now := s.now().UTC()

	due, err := s.store.ListDueReminders(ctx, now.Add(cfg.DueLookahead), cfg.BatchLimit)
	if err != nil {
		// Transient storage errors skip the tick; the next one retries.
		s.log.Warn("due reminder query failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug("dispatching reminders", logx.Int("due", len(due)))

	for _, rem := range due {
		if ctx.Err() != nil {
			return
		}
		s.dispatchOne(ctx, cfg, rem, now)
	}
}

func (s *Service) dispatchOne(ctx context.Context, cfg Config, rem model.Reminder, now time.Time) {
	rlog := s.log.With(logx.String("reminder", rem.ID.String()), logx.String("task", rem.TaskID.String()))

	// Too far past due: fail it without bothering the user.
	if now.Sub(rem.At) > cfg.StaleAfter {
		if ok, err := s.store.UpdateReminderStatusCAS(ctx, rem.ID, model.ReminderPending, model.ReminderFailed, rem.Attempts); err != nil {
			rlog.Warn("stale reminder update failed", logx.Err(err))
		} else if ok {
			rlog.Info("stale reminder dropped", logx.Time("due", rem.At))
		}
		return
	}

	// The task may have completed or been re-planned since scheduling.
	task, err := s.store.GetTask(ctx, rem.TaskID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.casCancel(ctx, rem, rlog)
		return
	case err != nil:
		rlog.Warn("task lookup failed", logx.Err(err))
		return
	case task.Status != model.TaskPending:
		s.casCancel(ctx, rem, rlog)
		return
	}

	// A configured lookahead may pull a reminder in ahead of its
	// instant; delivery still waits for the instant itself.
	if wait := rem.At.Sub(now); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	var opt *kit.SendOptions
	if s.Markup != nil {
		opt = &kit.SendOptions{ParseMode: "Markdown", ReplyMarkupAdapter: s.Markup(rem.TaskID)}
	} else {
		opt = &kit.SendOptions{ParseMode: "Markdown"}
	}

	attempts := rem.Attempts
	var lastErr error
	for try := 0; try <= cfg.RetryMax; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay(cfg, try)):
			}
		}
		attempts++
		if lastErr = s.notif.Deliver(ctx, int64(rem.UserID), rem.Message, opt); lastErr == nil {
			break
		}
		if ctx.Err() != nil || errors.Is(lastErr, context.Canceled) {
			return
		}
	}

	if lastErr != nil {
		if ok, err := s.store.UpdateReminderStatusCAS(ctx, rem.ID, model.ReminderPending, model.ReminderFailed, attempts); err != nil {
			rlog.Warn("failed-state update failed", logx.Err(err))
		} else if ok {
			rlog.Warn("reminder delivery failed", logx.Int("attempts", attempts), logx.Err(lastErr))
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeReminderFailed,
				Data: map[string]any{"reminder": rem.ID.String(), "attempts": attempts},
			})
		}
		return
	}

	ok, err := s.store.UpdateReminderStatusCAS(ctx, rem.ID, model.ReminderPending, model.ReminderSent, attempts)
	if err != nil {
		rlog.Warn("sent-state update failed", logx.Err(err))
		return
	}
	if !ok {
		// Lost the race after delivery; nothing to roll back, just note it.
		rlog.Debug("reminder already transitioned elsewhere")
		return
	}
	rlog.Info("reminder sent", logx.Int("attempts", attempts))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeReminderSent,
		Data: map[string]any{"reminder": rem.ID.String(), "user": int64(rem.UserID)},
	})
}

func (s *Service) casCancel(ctx context.Context, rem model.Reminder, rlog logx.Logger) {
	if ok, err := s.store.UpdateReminderStatusCAS(ctx, rem.ID, model.ReminderPending, model.ReminderCancelled, rem.Attempts); err != nil {
		rlog.Warn("cancel update failed", logx.Err(err))
	} else if ok {
		rlog.Info("reminder cancelled for non-pending task")
	}
}

// retryDelay is exponential backoff with up to 20% jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase << (attempt - 1)
	if d > cfg.RetryMaxDelay || d <= 0 {
		d = cfg.RetryMaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d)/5+1))
}
