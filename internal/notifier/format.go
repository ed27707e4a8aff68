package notifier

import (
	"fmt"
	"strings"
	"time"

	"planbot/internal/model"
)

// FormatReminder builds the reminder text for a scheduled task.
func FormatReminder(task model.Task) string {
	var b strings.Builder
	b.WriteString("⏰ *Task Reminder*\n\n")
	fmt.Fprintf(&b, "*%s*\n\n", task.Title)
	if task.Time != nil {
		fmt.Fprintf(&b, "🕐 Scheduled: %s\n", task.Time)
	}
	fmt.Fprintf(&b, "⏱ Duration: %d minutes\n", int(task.Duration/time.Minute))
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if task.Payload.Rationale != "" {
		fmt.Fprintf(&b, "\n💡 _%s_\n", task.Payload.Rationale)
	}
	return b.String()
}

// FormatDayBefore builds the heads-up sent the evening before a
// high-priority task.
func FormatDayBefore(task model.Task) string {
	var b strings.Builder
	b.WriteString("📌 *Tomorrow*\n\n")
	fmt.Fprintf(&b, "*%s*\n", task.Title)
	if task.Time != nil {
		fmt.Fprintf(&b, "🕐 At: %s\n", task.Time)
	}
	fmt.Fprintf(&b, "⏱ Duration: %d minutes\n", int(task.Duration/time.Minute))
	return b.String()
}

// FormatDailyAgenda builds the morning summary for one day's tasks.
func FormatDailyAgenda(date model.Date, tasks []model.Task, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🌅 *Good Morning!*\n\n")
	if len(tasks) == 0 {
		b.WriteString("You have no scheduled tasks for today.\nEnjoy your free time! 😊")
		return b.String()
	}

	dateStr := date.At(0, loc).Format("Monday, January 2")
	fmt.Fprintf(&b, "Here's your plan for %s:\n\n", dateStr)

	const maxListed = 10
	for i, t := range tasks {
		if i == maxListed {
			fmt.Fprintf(&b, "\n...and %d more tasks\n", len(tasks)-maxListed)
			break
		}
		when := "All day"
		if t.Time != nil {
			when = t.Time.String()
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, when, t.Title)
	}
	fmt.Fprintf(&b, "\n📊 Total: %d tasks\n", len(tasks))
	b.WriteString("\nYou've got this! 💪\n\nView details: /today")
	return b.String()
}

// FormatWeeklyStats builds the weekly progress report.
func FormatWeeklyStats(stats model.TaskStatistics) string {
	rate := stats.CompletionRate()

	var b strings.Builder
	b.WriteString("📊 *Weekly Progress Report*\n\n")
	fmt.Fprintf(&b, "✅ Completed: %d\n", stats.Completed)
	fmt.Fprintf(&b, "📝 Pending: %d\n", stats.Pending)
	fmt.Fprintf(&b, "⏭ Skipped: %d\n\n", stats.Skipped)
	fmt.Fprintf(&b, "📈 Completion Rate: %.1f%%\n\n", rate)

	switch {
	case rate >= 80:
		b.WriteString("🌟 Excellent work this week! Keep it up!\n")
	case rate >= 60:
		b.WriteString("👍 Good progress! You're on track.\n")
	case rate >= 40:
		b.WriteString("💪 Keep pushing! You can do better.\n")
	default:
		b.WriteString("🔄 Consider adjusting your plan with /plan\n")
	}
	b.WriteString("\nView your plan: /today")
	return b.String()
}
