// Package notifier pushes messages to users through the transport
// adapter, smoothing bursts with a token-bucket rate limit.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
)

type Config struct {
	Enabled    bool
	RatePerSec int
}

// Service is a synchronous deliverer. Retry ownership lives with the
// callers (the reminder dispatcher keeps its own attempt bookkeeping), so
// a failed send is returned, not requeued.
//
// Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) limiterRef() (*rate.Limiter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limiter, s.cfg.Enabled
}

// Deliver sends one text message, blocking on the rate limiter first.
func (s *Service) Deliver(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) error {
	lim, enabled := s.limiterRef()
	if !enabled {
		return ErrDisabled
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	if err := s.adapter.SendText(ctx, chatID, text, opt); err != nil {
		s.log.Warn("delivery failed",
			logx.Int64("chat", chatID), logx.Err(err))
		return err
	}
	s.log.Debug("delivered",
		logx.Int64("chat", chatID),
		logx.Duration("took", time.Since(start)))
	return nil
}

// DeliverDocument sends a file attachment under the same rate limit.
func (s *Service) DeliverDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	lim, enabled := s.limiterRef()
	if !enabled {
		return ErrDisabled
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	return s.adapter.SendDocument(ctx, chatID, filename, data, caption)
}
