package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc runs one drain pass and reports how many items it processed.
type TickFunc func(ctx context.Context) (processed int, err error)

type Status struct {
	Running       bool      `json:"running"`
	Interval      string    `json:"interval"`
	LastTickAt    time.Time `json:"last_tick_at,omitzero"`
	LastProcessed int       `json:"last_processed"`
	LastError     string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	interval time.Duration
	tickFn   TickFunc
	logger   *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu        sync.Mutex
	lastTickAt    time.Time
	lastProcessed int
	lastErr       error
}

func New(interval time.Duration, tickFn TickFunc, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop waits for an in-flight tick to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	st := Status{
		Running:       s.running.Load(),
		Interval:      s.interval.String(),
		LastTickAt:    s.lastTickAt,
		LastProcessed: s.lastProcessed,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	var (
		processed int
		err       error
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			s.logger.Error("scheduler tick panic recovered", "panic", r)
		}
		s.record(start, processed, err)
	}()

	processed, err = s.tickFn(ctx)
	if err != nil {
		s.logger.Error("scheduler tick failed", "error", err, "processed", processed)
		return
	}
	s.logger.Info("scheduler tick completed",
		"processed", processed,
		"duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) record(at time.Time, processed int, err error) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	s.lastTickAt = at
	s.lastProcessed = processed
	s.lastErr = err
}
