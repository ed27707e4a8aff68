package reminder

import (
	"context"

	"planbot/internal/model"
	"planbot/internal/notifier"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

var markdown = &kit.SendOptions{ParseMode: "Markdown"}

// sendDailySummaries runs hourly and sends the morning agenda to every
// active user whose local clock is currently at the summary hour. Running
// on local time per user means one job covers all timezones.
func (s *Service) sendDailySummaries(ctx context.Context) {
	cfg := s.config()
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		s.log.Warn("active user query failed", logx.Err(err))
		return
	}
	now := s.now().UTC()

	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		local := now.In(u.Location())
		if local.Hour() != cfg.DailySummaryHour {
			continue
		}
		today := model.DateOf(local)
		tasks, err := s.store.ListTasksForDate(ctx, u.ID, today)
		if err != nil {
			s.log.Warn("daily summary task query failed",
				logx.Int64("user", int64(u.ID)), logx.Err(err))
			continue
		}
		text := notifier.FormatDailyAgenda(today, tasks, u.Location())
		if err := s.notif.Deliver(ctx, int64(u.ID), text, markdown); err != nil {
			s.log.Warn("daily summary delivery failed",
				logx.Int64("user", int64(u.ID)), logx.Err(err))
			continue
		}
		s.log.Debug("daily summary sent", logx.Int64("user", int64(u.ID)))
	}
}

// sendWeeklySummaries sends the progress report to every active user.
func (s *Service) sendWeeklySummaries(ctx context.Context) {
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		s.log.Warn("active user query failed", logx.Err(err))
		return
	}
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		stats, err := s.store.TaskStatistics(ctx, u.ID)
		if err != nil {
			s.log.Warn("weekly stats query failed",
				logx.Int64("user", int64(u.ID)), logx.Err(err))
			continue
		}
		if stats.Total() == 0 {
			continue
		}
		text := notifier.FormatWeeklyStats(stats)
		if err := s.notif.Deliver(ctx, int64(u.ID), text, markdown); err != nil {
			s.log.Warn("weekly summary delivery failed",
				logx.Int64("user", int64(u.ID)), logx.Err(err))
		}
	}
}
