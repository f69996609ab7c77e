package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"call-insights/pkg/logger"
)

// Supervisor runs background pipeline tasks bound to one root context.
//
// Task errors are logged, never propagated to siblings: one failed call must
// not cancel the others. Shutdown cancels the root context and waits.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group
	log    *slog.Logger

	// mu orders task admission against Shutdown so no task starts after Wait begins.
	mu     sync.Mutex
	closed bool
}

func NewSupervisor(parent context.Context, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(logger.With(parent, log))
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

// Go starts fn in the background. It reports false once shutdown has begun.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn("task rejected, supervisor shutting down", "task", name)
		return false
	}
	s.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(s.ctx); err != nil {
			s.log.Error("task failed", "task", name, "err", err)
		}
		return nil
	})
	return true
}

// GoAfter is Go with a start delay. The task is dropped if shutdown begins first.
func (s *Supervisor) GoAfter(name string, delay time.Duration, fn func(ctx context.Context) error) bool {
	if delay <= 0 {
		return s.Go(name, fn)
	}
	return s.Go(name, func(ctx context.Context) error {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		return fn(ctx)
	})
}

// Wait blocks until every started task has returned.
func (s *Supervisor) Wait() {
	_ = s.g.Wait()
}

// Shutdown stops accepting tasks, cancels running ones and waits for them
// until ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
