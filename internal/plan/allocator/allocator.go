// Package allocator places candidate tasks into free windows using a
// deterministic first-fit, earliest-start policy.
package allocator

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"planbot/internal/model"
)

// Task is a placement request. TargetDate bounds the scan when set; tasks
// without one may be placed anywhere up to the horizon end.
type Task struct {
	GoalID      uuid.UUID
	Title       string
	Description string
	Duration    time.Duration
	Priority    int
	TargetDate  *model.Date
}

// Placement pins a task to a concrete date and start time.
type Placement struct {
	Task  Task
	Date  model.Date
	Start model.TimeOfDay
}

// Result separates placed tasks from those no window could hold. An
// unplaceable task is a reported outcome, not an error.
type Result struct {
	Placements  []Placement
	Unplaceable []Task
}

// Allocate assigns tasks to windows. Tasks are ordered by target date
// ascending with nil last, then priority descending, then duration
// descending; ties keep input order. Each task takes the first window with
// enough remaining capacity, consuming it from the front, scanning days
// from the range start up to its target date or the horizon end. Windows
// are not modified; capacity is tracked on a copy. Deterministic: identical
// input yields identical output.
func Allocate(windows map[model.Date][]model.Interval, tasks []Task, from, horizonEnd model.Date) Result {
	days := make([]model.Date, 0, len(windows))
	for d := range windows {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	remaining := make(map[model.Date][]model.Interval, len(windows))
	for d, ivs := range windows {
		cp := make([]model.Interval, len(ivs))
		copy(cp, ivs)
		remaining[d] = cp
	}

	order := make([]int, len(tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := tasks[order[a]], tasks[order[b]]
		switch {
		case ta.TargetDate != nil && tb.TargetDate == nil:
			return true
		case ta.TargetDate == nil && tb.TargetDate != nil:
			return false
		case ta.TargetDate != nil && tb.TargetDate != nil && *ta.TargetDate != *tb.TargetDate:
			return ta.TargetDate.Before(*tb.TargetDate)
		}
		if ta.Priority != tb.Priority {
			return ta.Priority > tb.Priority
		}
		return ta.Duration > tb.Duration
	})

	var res Result
	for _, idx := range order {
		task := tasks[idx]
		need := model.TimeOfDay(task.Duration / time.Minute)
		if need <= 0 {
			res.Unplaceable = append(res.Unplaceable, task)
			continue
		}
		last := horizonEnd
		if task.TargetDate != nil && task.TargetDate.Before(horizonEnd) {
			last = *task.TargetDate
		}

		placed := false
		for _, d := range days {
			if d.Before(from) || d.After(last) {
				continue
			}
			ivs := remaining[d]
			for i, w := range ivs {
				if w.End-w.Start < need {
					continue
				}
				res.Placements = append(res.Placements, Placement{
					Task:  task,
					Date:  d,
					Start: w.Start,
				})
				ivs[i].Start += need
				placed = true
				break
			}
			if placed {
				break
			}
		}
		if !placed {
			res.Unplaceable = append(res.Unplaceable, task)
		}
	}
	return res
}
