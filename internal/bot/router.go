// Package bot routes incoming chat commands and inline-button callbacks
// to the planning services. It is thin glue; decisions live in the
// services it calls.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	rtsup "planbot/internal/runtime/supervisor"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// CallbackHandlerFunc handles an inline-button press. payload is the part
// of the callback data after the action prefix.
type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type Command struct {
	Name        string
	Description string
	Usage       string
	Handle      HandlerFunc
}

type Request struct {
	ChatID       int64
	FromID       int64
	FromUsername string
	Args         []string
	CallbackID   string

	Adapter kit.Adapter
	Log     logx.Logger
}

// Reply sends a Markdown response to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Adapter.SendText(ctx, r.ChatID, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
}

// Router drains the adapter's update channel and runs handlers on a small
// worker pool so one slow handler can't stall the poll loop.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu        sync.RWMutex
	cmds      map[string]Command
	order     []string
	callbacks map[string]CallbackHandlerFunc

	timeout time.Duration
	jobs    chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func NewRouter(adapter kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:       log,
		adapter:   adapter,
		cmds:      map[string]Command{},
		callbacks: map[string]CallbackHandlerFunc{},
		timeout:   30 * time.Second,
		jobs:      make(chan func(), 64),
	}
}

// Register installs commands and injects /help. Not safe to call after
// Run has started.
func (r *Router) Register(cmds []Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		if _, dup := r.cmds[c.Name]; !dup {
			r.order = append(r.order, c.Name)
		}
		r.cmds[c.Name] = c
	}
	if _, ok := r.cmds["help"]; !ok {
		r.order = append(r.order, "help")
		r.cmds["help"] = Command{
			Name:        "help",
			Description: "Show available commands",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, r.helpText())
			},
		}
	}
}

// RegisterCallback installs a handler for callback data of the form
// "<action>:<payload>".
func (r *Router) RegisterCallback(action string, h CallbackHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[action] = h
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString("*Commands*\n\n")
	for _, name := range r.order {
		c := r.cmds[name]
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

const routerWorkers = 4

// Run consumes updates until ctx is cancelled.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = true
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.sup = sup
	r.runMu.Unlock()

	for i := 0; i < routerWorkers; i++ {
		sup.Go0("worker", func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job := <-r.jobs:
					job()
				}
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			sup.Cancel()
			return ctx.Err()
		case up := <-updates:
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.routeMessage(ctx, *up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.routeCallback(ctx, *up.Callback)
		}
	}
}

// parseCommand splits "/done 2" into ("done", ["2"]). A trailing bot
// mention ("/done@planbot") is stripped. Non-command text yields "".
func parseCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil
	}
	name := fields[0]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

func (r *Router) routeMessage(ctx context.Context, msg kit.Message) {
	name, args := parseCommand(msg.Text)
	if name == "" {
		return
	}
	r.mu.RLock()
	cmd, ok := r.cmds[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	req := &Request{
		ChatID:       msg.ChatID,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Args:         args,
		Adapter:      r.adapter,
		Log:          r.log.With(logx.String("cmd", name), logx.Int64("from", msg.FromID)),
	}
	r.enqueue(ctx, "/"+name, req, func(c context.Context) error {
		return cmd.Handle(c, req)
	})
}

func (r *Router) routeCallback(ctx context.Context, cb kit.Callback) {
	action, payload, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	r.mu.RLock()
	h, found := r.callbacks[action]
	r.mu.RUnlock()
	if !found {
		return
	}
	req := &Request{
		ChatID:     cb.ChatID,
		FromID:     cb.FromID,
		CallbackID: cb.ID,
		Adapter:    r.adapter,
		Log:        r.log.With(logx.String("cb", action), logx.Int64("from", cb.FromID)),
	}
	r.enqueue(ctx, "cb:"+action, req, func(c context.Context) error {
		return h(c, req, payload)
	})
}

func (r *Router) enqueue(ctx context.Context, name string, req *Request, fn func(context.Context) error) {
	job := func() {
		defer func() {
			if rec := recover(); rec != nil {
				req.Log.Error("handler panic",
					logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		hctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(hctx); err != nil {
			req.Log.Warn("handler failed", logx.Err(err))
			_ = req.Reply(hctx, "Something went wrong, please try again.")
			return
		}
		req.Log.Debug("handled", logx.Duration("took", time.Since(start)))
	}
	select {
	case r.jobs <- job:
	default:
		req.Log.Warn("command dropped (queue full)", logx.String("name", name))
	}
}
