// Package content produces candidate tasks for a goal. The engine treats
// the provider as an untrusted collaborator: wording passes through
// untouched, numeric fields are validated at this boundary.
package content

import (
	"context"
	"fmt"
	"time"

	"planbot/internal/model"
)

// Candidate is a proposed task before placement. Preferred is a hint, not
// a constraint; the allocator may ignore it.
type Candidate struct {
	Title       string
	Description string
	Duration    time.Duration
	Priority    int
	Preferred   *model.Date
}

// Provider returns ordered candidate tasks for a goal over the planning
// horizon.
type Provider interface {
	Tasks(ctx context.Context, goal model.Goal, horizonDays int) ([]Candidate, error)
}

const (
	minDuration = 15 * time.Minute
	maxDuration = 8 * time.Hour
)

// Sanitize drops candidates with no title or non-positive duration, clamps
// durations to [15m, 8h] and priorities to [1, 5], and fills a missing
// priority from the goal.
func Sanitize(goal model.Goal, in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Title == "" || c.Duration <= 0 {
			continue
		}
		if c.Duration < minDuration {
			c.Duration = minDuration
		}
		if c.Duration > maxDuration {
			c.Duration = maxDuration
		}
		if c.Priority == 0 {
			c.Priority = goal.Priority
		}
		if !model.ValidPriority(c.Priority) {
			if c.Priority < 1 {
				c.Priority = 1
			} else {
				c.Priority = 5
			}
		}
		out = append(out, c)
	}
	return out
}

// Static is a provider that needs no external service: it splits a goal
// into evenly spread work sessions. Used when no API key is configured and
// in tests.
type Static struct {
	// SessionLength defaults to one hour.
	SessionLength time.Duration
	// Sessions defaults to one per two horizon days, capped at 7.
	Sessions int
}

func (s Static) Tasks(_ context.Context, goal model.Goal, horizonDays int) ([]Candidate, error) {
	length := s.SessionLength
	if length <= 0 {
		length = time.Hour
	}
	n := s.Sessions
	if n <= 0 {
		n = horizonDays / 2
		if n < 1 {
			n = 1
		}
		if n > 7 {
			n = 7
		}
	}
	out := make([]Candidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Candidate{
			Title:       fmt.Sprintf("%s (session %d/%d)", goal.Title, i, n),
			Description: goal.Description,
			Duration:    length,
			Priority:    goal.Priority,
		})
	}
	return Sanitize(goal, out), nil
}
