package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planbot/internal/model"
	logx "planbot/pkg/logx"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"
)

// OpenRouter asks a chat-completions endpoint to break a goal into
// concrete task candidates.
type OpenRouter struct {
	apiKey  string
	model   string
	baseURL string
	hc      *http.Client
	log     logx.Logger
}

// OpenRouterConfig carries the client knobs; zero values get defaults.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewOpenRouter(cfg OpenRouterConfig, log logx.Logger) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &OpenRouter{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// wireTask is the JSON shape the model is asked to produce.
type wireTask struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	Priority        int    `json:"priority"`
	PreferredDate   string `json:"preferred_date"`
}

const systemPrompt = `You are a planning assistant. Given a goal, break it into concrete tasks.
Respond with a JSON array only, no prose. Each element:
{"title": string, "description": string, "duration_minutes": int, "priority": int 1-5, "preferred_date": "YYYY-MM-DD" or ""}`

func (c *OpenRouter) Tasks(ctx context.Context, goal model.Goal, horizonDays int) ([]Candidate, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Goal: %s\n", goal.Title)
	if goal.Description != "" {
		fmt.Fprintf(&user, "Details: %s\n", goal.Description)
	}
	fmt.Fprintf(&user, "Priority: %d of 5\n", goal.Priority)
	if goal.TargetDate != nil {
		fmt.Fprintf(&user, "Deadline: %s\n", goal.TargetDate)
	}
	fmt.Fprintf(&user, "Planning horizon: %d days\n", horizonDays)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openrouter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("openrouter: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: empty response")
	}

	tasks, err := parseTasks(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	c.log.Debug("candidates generated",
		logx.String("goal", goal.ID.String()),
		logx.Int("count", len(tasks)))
	return Sanitize(goal, tasks), nil
}

// parseTasks extracts the JSON array from the model output, tolerating
// markdown code fences and surrounding prose.
func parseTasks(content string) ([]Candidate, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "["); i >= 0 {
		if j := strings.LastIndex(content, "]"); j > i {
			content = content[i : j+1]
		}
	}

	var wire []wireTask
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("openrouter: parse tasks: %w", err)
	}

	out := make([]Candidate, 0, len(wire))
	for _, w := range wire {
		c := Candidate{
			Title:       strings.TrimSpace(w.Title),
			Description: strings.TrimSpace(w.Description),
			Duration:    time.Duration(w.DurationMinutes) * time.Minute,
			Priority:    w.Priority,
		}
		if w.PreferredDate != "" {
			if d, err := model.ParseDate(w.PreferredDate); err == nil {
				c.Preferred = &d
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
