package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"planbot/internal/ics"
	"planbot/internal/model"
	"planbot/internal/plan"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

// Handlers binds the chat commands to the planning services.
type Handlers struct {
	store   storage.Store
	planner *plan.Service
	log     logx.Logger
}

func NewHandlers(store storage.Store, planner *plan.Service, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{store: store, planner: planner, log: log}
}

// Install registers all commands and callbacks on the router.
func (h *Handlers) Install(r *Router) {
	r.Register([]Command{
		{Name: "start", Description: "Register and set your timezone", Usage: "/start [timezone]", Handle: h.start},
		{Name: "goal", Description: "Add a goal", Usage: "/goal <priority 1-5> <deadline|-> <title>", Handle: h.addGoal},
		{Name: "goals", Description: "List your goals", Handle: h.listGoals},
		{Name: "busy", Description: "Add a recurring weekly commitment", Usage: "/busy <mon..sun> <HH:MM-HH:MM> [activity]", Handle: h.addBusy},
		{Name: "event", Description: "Add a one-off event", Usage: "/event <YYYY-MM-DD> <HH:MM-HH:MM|allday> [title]", Handle: h.addEvent},
		{Name: "plan", Description: "Generate a task plan", Usage: "/plan [days]", Handle: h.generate},
		{Name: "replan", Description: "Regenerate the current plan", Handle: h.generate},
		{Name: "today", Description: "Show today's tasks", Handle: h.today},
		{Name: "done", Description: "Mark a task from /today as done", Usage: "/done <n>", Handle: h.done},
		{Name: "skip", Description: "Skip a task from /today", Usage: "/skip <n>", Handle: h.skip},
		{Name: "stats", Description: "Show your progress", Handle: h.stats},
		{Name: "export", Description: "Export the plan as an iCalendar file", Handle: h.export},
	})
	r.RegisterCallback("done", h.finishCallback(model.TaskCompleted))
	r.RegisterCallback("skip", h.finishCallback(model.TaskSkipped))
}

func (h *Handlers) user(ctx context.Context, req *Request) (model.User, error) {
	u, err := h.store.GetUser(ctx, model.UserID(req.FromID))
	if errors.Is(err, storage.ErrNotFound) {
		_ = req.Reply(ctx, "Please run /start first.")
		return model.User{}, err
	}
	return u, err
}

func (h *Handlers) start(ctx context.Context, req *Request) error {
	tz := "UTC"
	if len(req.Args) > 0 {
		if _, err := time.LoadLocation(req.Args[0]); err != nil {
			return req.Reply(ctx, fmt.Sprintf("Unknown timezone %q. Use an IANA name like Europe/Berlin.", req.Args[0]))
		}
		tz = req.Args[0]
	}
	err := h.store.UpsertUser(ctx, model.User{
		ID:       model.UserID(req.FromID),
		Username: req.FromUsername,
		Timezone: tz,
		Active:   true,
	})
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf(
		"👋 Welcome! Timezone set to %s.\n\n"+
			"🎯 /goal - add a goal\n"+
			"📅 /busy - set weekly commitments\n"+
			"🗓 /plan - generate your task plan\n"+
			"Use /help for everything else.", tz))
}

func (h *Handlers) addGoal(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	if len(req.Args) < 3 {
		return req.Reply(ctx, "Usage: /goal <priority 1-5> <deadline YYYY-MM-DD or -> <title>")
	}
	prio, err := strconv.Atoi(req.Args[0])
	if err != nil || !model.ValidPriority(prio) {
		return req.Reply(ctx, "Priority must be a number from 1 to 5.")
	}
	var target *model.Date
	if req.Args[1] != "-" {
		d, err := model.ParseDate(req.Args[1])
		if err != nil {
			return req.Reply(ctx, "Deadline must be YYYY-MM-DD, or - for none.")
		}
		target = &d
	}
	g := model.Goal{
		ID:         uuid.New(),
		UserID:     model.UserID(req.FromID),
		Title:      strings.Join(req.Args[2:], " "),
		Priority:   prio,
		TargetDate: target,
		Status:     model.GoalActive,
	}
	if err := h.store.CreateGoal(ctx, g); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🎯 Goal added: *%s*\nRun /plan when you're ready.", g.Title))
}

var goalEmoji = map[model.GoalStatus]string{
	model.GoalActive:    "🎯",
	model.GoalCompleted: "✅",
	model.GoalPaused:    "⏸",
	model.GoalCancelled: "❌",
}

func (h *Handlers) listGoals(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	goals, err := h.store.ListGoals(ctx, model.UserID(req.FromID))
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		return req.Reply(ctx, "No goals yet. Add one with /goal.")
	}
	var b strings.Builder
	b.WriteString("*Your Goals*\n\n")
	for i, g := range goals {
		fmt.Fprintf(&b, "%d. %s %s (priority %d", i+1, goalEmoji[g.Status], g.Title, g.Priority)
		if g.TargetDate != nil {
			fmt.Fprintf(&b, ", due %s", g.TargetDate)
		}
		b.WriteString(")\n")
	}
	return req.Reply(ctx, b.String())
}

var weekdayNames = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

func parseSpan(s string) (model.TimeOfDay, model.TimeOfDay, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM-HH:MM")
	}
	start, err := model.ParseTimeOfDay(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := model.ParseTimeOfDay(to)
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("end must be after start")
	}
	return start, end, nil
}

func (h *Handlers) addBusy(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	if len(req.Args) < 2 {
		return req.Reply(ctx, "Usage: /busy <mon..sun> <HH:MM-HH:MM> [activity]")
	}
	wd, ok := weekdayNames[strings.ToLower(req.Args[0])[:min(3, len(req.Args[0]))]]
	if !ok {
		return req.Reply(ctx, "Weekday must be one of mon..sun.")
	}
	start, end, err := parseSpan(req.Args[1])
	if err != nil {
		return req.Reply(ctx, "Time range must be HH:MM-HH:MM.")
	}
	_, err = h.store.AddWeeklyBlock(ctx, model.WeeklyBlock{
		UserID:   model.UserID(req.FromID),
		Weekday:  wd,
		Start:    start,
		End:      end,
		Activity: strings.Join(req.Args[2:], " "),
	})
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("📅 Busy %s %s-%s saved.", req.Args[0], start, end))
}

func (h *Handlers) addEvent(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	if len(req.Args) < 2 {
		return req.Reply(ctx, "Usage: /event <YYYY-MM-DD> <HH:MM-HH:MM|allday> [title]")
	}
	date, err := model.ParseDate(req.Args[0])
	if err != nil {
		return req.Reply(ctx, "Date must be YYYY-MM-DD.")
	}
	ev := model.SpecialEvent{
		UserID:           model.UserID(req.FromID),
		Date:             date,
		Title:            strings.Join(req.Args[2:], " "),
		BlocksScheduling: true,
	}
	if strings.EqualFold(req.Args[1], "allday") {
		ev.AllDay = true
	} else {
		ev.Start, ev.End, err = parseSpan(req.Args[1])
		if err != nil {
			return req.Reply(ctx, "Time range must be HH:MM-HH:MM, or allday.")
		}
	}
	if _, err := h.store.AddSpecialEvent(ctx, ev); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🗓 Event on %s saved.", date))
}

func (h *Handlers) generate(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	days := 0
	if len(req.Args) > 0 {
		if n, err := strconv.Atoi(req.Args[0]); err == nil {
			days = n
		}
	}
	_ = req.Reply(ctx, "🤔 Working on your plan...")

	res, err := h.planner.Generate(ctx, model.UserID(req.FromID), days)
	switch {
	case errors.Is(err, plan.ErrPlanInProgress):
		return req.Reply(ctx, "A plan is already being generated, hold on.")
	case errors.Is(err, plan.ErrNoGoals):
		return req.Reply(ctx, "You have no active goals. Add one with /goal first.")
	case err != nil:
		return err
	}

	var b strings.Builder
	b.WriteString("✅ *Plan Generated Successfully!*\n\n")
	fmt.Fprintf(&b, "📋 Tasks Scheduled: %d\n", res.Placed)
	fmt.Fprintf(&b, "📅 Duration: %d days\n", res.From.DaysUntil(res.To)+1)
	if res.Voided > 0 {
		fmt.Fprintf(&b, "♻️ Rescheduled: %d previous tasks\n", res.Voided)
	}
	if res.Unplaceable() > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d tasks didn't fit your free time:\n", res.Unplaceable())
		for _, g := range res.Goals {
			if g.Unplaceable > 0 {
				fmt.Fprintf(&b, "  • %s (%d left out)\n", g.Title, g.Unplaceable)
			}
		}
		b.WriteString("Consider freeing up time or extending the horizon.\n")
	}
	var failed []string
	for _, g := range res.Goals {
		if g.Failed {
			failed = append(failed, g.Title)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n⚠️ Couldn't plan these goals, their previous tasks are kept:\n")
		for _, title := range failed {
			fmt.Fprintf(&b, "  • %s\n", title)
		}
		b.WriteString("Try /replan later.\n")
	}
	b.WriteString("\nView today's tasks: /today")
	return req.Reply(ctx, b.String())
}

var taskEmoji = map[model.TaskStatus]string{
	model.TaskPending:     "📝",
	model.TaskCompleted:   "✅",
	model.TaskSkipped:     "⏭",
	model.TaskRescheduled: "📅",
}

func (h *Handlers) todayTasks(ctx context.Context, user model.User) (model.Date, []model.Task, error) {
	today := model.DateOf(time.Now().In(user.Location()))
	tasks, err := h.store.ListTasksForDate(ctx, user.ID, today)
	return today, tasks, err
}

func (h *Handlers) today(ctx context.Context, req *Request) error {
	user, err := h.user(ctx, req)
	if err != nil {
		return nil
	}
	today, tasks, err := h.todayTasks(ctx, user)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return req.Reply(ctx, "📅 *Today's Tasks*\n\nNothing scheduled. Generate a plan with /plan.")
	}

	var done, pending int
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			done++
		case model.TaskPending:
			pending++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Today's Tasks* (%s)\n\n", today.At(0, user.Location()).Format("Monday, January 2"))
	fmt.Fprintf(&b, "Total: %d | ✅ Done: %d | 📝 Pending: %d\n\n", len(tasks), done, pending)
	for i, t := range tasks {
		when := "       "
		if t.Time != nil {
			when = t.Time.String()
		}
		fmt.Fprintf(&b, "%d. %s %s %s (%dm)\n", i+1, taskEmoji[t.Status], when, t.Title, int(t.Duration/time.Minute))
	}
	b.WriteString("\nMark one done: /done <n>")
	return req.Reply(ctx, b.String())
}

func (h *Handlers) done(ctx context.Context, req *Request) error {
	return h.finishByIndex(ctx, req, model.TaskCompleted)
}

func (h *Handlers) skip(ctx context.Context, req *Request) error {
	return h.finishByIndex(ctx, req, model.TaskSkipped)
}

func (h *Handlers) finishByIndex(ctx context.Context, req *Request, status model.TaskStatus) error {
	user, err := h.user(ctx, req)
	if err != nil {
		return nil
	}
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Give the task number from /today, e.g. /done 2")
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil || n < 1 {
		return req.Reply(ctx, "Give the task number from /today, e.g. /done 2")
	}
	_, tasks, err := h.todayTasks(ctx, user)
	if err != nil {
		return err
	}
	if n > len(tasks) {
		return req.Reply(ctx, fmt.Sprintf("There are only %d tasks today.", len(tasks)))
	}
	task := tasks[n-1]
	if task.Status != model.TaskPending {
		return req.Reply(ctx, fmt.Sprintf("Task %d is already %s.", n, task.Status))
	}
	return h.finishTask(ctx, req, user.ID, task, status)
}

func (h *Handlers) finishTask(ctx context.Context, req *Request, userID model.UserID, task model.Task, status model.TaskStatus) error {
	var err error
	if status == model.TaskCompleted {
		_, err = h.planner.Complete(ctx, userID, task.ID)
	} else {
		_, err = h.planner.Skip(ctx, userID, task.ID)
	}
	if err != nil {
		return err
	}
	if status == model.TaskCompleted {
		return req.Reply(ctx, fmt.Sprintf("✅ *Task Completed!*\n\n%s\n\nGreat work! 🎉", task.Title))
	}
	return req.Reply(ctx, fmt.Sprintf("⏭ Skipped: %s", task.Title))
}

// finishCallback handles the quick-action buttons attached to reminders.
func (h *Handlers) finishCallback(status model.TaskStatus) CallbackHandlerFunc {
	return func(ctx context.Context, req *Request, payload string) error {
		task, err := resolveTaskRef(ctx, h.store, payload)
		if err != nil {
			_ = req.Adapter.AnswerCallback(ctx, req.CallbackID, "Task not found.")
			return nil
		}
		if task.Status != model.TaskPending {
			_ = req.Adapter.AnswerCallback(ctx, req.CallbackID, "Already handled.")
			return nil
		}
		if err := h.finishTask(ctx, req, model.UserID(req.FromID), task, status); err != nil {
			_ = req.Adapter.AnswerCallback(ctx, req.CallbackID, "Something went wrong.")
			return err
		}
		return req.Adapter.AnswerCallback(ctx, req.CallbackID, "Done!")
	}
}

func (h *Handlers) stats(ctx context.Context, req *Request) error {
	if _, err := h.user(ctx, req); err != nil {
		return nil
	}
	stats, err := h.store.TaskStatistics(ctx, model.UserID(req.FromID))
	if err != nil {
		return err
	}
	if stats.Total() == 0 {
		return req.Reply(ctx, "No tasks yet. Generate a plan with /plan.")
	}
	var b strings.Builder
	b.WriteString("📊 *Your Progress*\n\n")
	fmt.Fprintf(&b, "✅ Completed: %d\n", stats.Completed)
	fmt.Fprintf(&b, "📝 Pending: %d\n", stats.Pending)
	fmt.Fprintf(&b, "⏭ Skipped: %d\n", stats.Skipped)
	fmt.Fprintf(&b, "\n📈 Completion Rate: %.1f%%", stats.CompletionRate())
	return req.Reply(ctx, b.String())
}

const exportHorizonDays = 30

func (h *Handlers) export(ctx context.Context, req *Request) error {
	user, err := h.user(ctx, req)
	if err != nil {
		return nil
	}
	from := model.DateOf(time.Now().In(user.Location()))
	tasks, err := h.store.ListPendingTasks(ctx, user.ID, storage.DateRange{
		From: from,
		To:   from.AddDays(exportHorizonDays),
	})
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return req.Reply(ctx, "Nothing to export. Generate a plan with /plan.")
	}
	data := ics.Export(tasks, user.Location())
	return req.Adapter.SendDocument(ctx, req.ChatID, "plan.ics", data, "Your scheduled plan")
}
