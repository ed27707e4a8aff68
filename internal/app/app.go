package app

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"planbot/internal/bot"
	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/notifier"
	"planbot/internal/plan"
	"planbot/internal/reminder"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	"planbot/internal/transport/telegram"
	logx "planbot/pkg/logx"
)

// App wires the storage, transport, planning, and reminder services
// together and owns their lifecycle.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter

	notif    *notifier.Service
	reminder *reminder.Service
	planner  *plan.Service
	router   *bot.Router

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	notifSvc := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")))

	provider, err := newContentProvider(cfg, log.With(logx.String("comp", "content")))
	if err != nil {
		return nil, err
	}

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}
	remSvc := reminder.New(rcfg, store, notifSvc, bus, log.With(logx.String("comp", "reminder")))
	remSvc.Markup = bot.TaskActionMarkup

	pcfg, err := mapPlannerConfig(cfg)
	if err != nil {
		return nil, err
	}
	planSvc := plan.New(pcfg, store, provider, remSvc, bus, log.With(logx.String("comp", "planner")))

	router := bot.NewRouter(ad, log.With(logx.String("comp", "commands")))
	bot.NewHandlers(store, planSvc, log.With(logx.String("comp", "commands"))).Install(router)

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notifSvc,
		reminder: remSvc,
		planner:  planSvc,
		router:   router,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPlannerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapReminderConfig(cfg); err != nil {
			return err
		}
		if _, err := newContentProvider(cfg, logx.Nop()); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.reminder.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	// Log events for observability; components subscribe themselves when
	// they need to react.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot-reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest snapshot.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated snapshot into the running services.
// Storage, telegram, and content changes need a restart; everything else
// applies live.
func (a *App) applyConfig(ctx context.Context, old, cfg *config.Config) {
	if old == nil {
		old = &config.Config{}
	}

	if !reflect.DeepEqual(old.Storage, cfg.Storage) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if !reflect.DeepEqual(old.Telegram, cfg.Telegram) {
		a.log.Warn("telegram config changed; restart required for changes to take effect")
	}
	if !reflect.DeepEqual(old.Content, cfg.Content) {
		a.log.Warn("content config changed; restart required for changes to take effect")
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.notif.Apply(mapNotifierConfig(cfg))

	if pcfg, err := mapPlannerConfig(cfg); err != nil {
		a.log.Warn("invalid planner config; keeping previous", logx.Err(err))
	} else {
		a.planner.Apply(pcfg)
	}

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
		return
	}
	prevEnabled := a.reminder.Enabled()
	a.reminder.Apply(rcfg)
	switch {
	case prevEnabled && !rcfg.Enabled:
		a.log.Info("reminder service disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.reminder.Stop(stopCtx)
		cancel()
	case !prevEnabled && rcfg.Enabled:
		a.log.Info("reminder service enabled via config")
		if err := a.reminder.Start(ctx); err != nil {
			a.log.Warn("reminder service restart failed", logx.Err(err))
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding
	// immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("reminder", 2*time.Second, func(c context.Context) error { return a.reminder.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command
	// dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
