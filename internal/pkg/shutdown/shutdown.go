// Package shutdown stops the relay in a fixed order: the bot poller first so
// no new requests are admitted, then the worker pool, then the shared
// clients, then the scratch sweep.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mediarelay/internal/pkg/logger"
)

const defaultTimeout = 30 * time.Second

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager is a stack of named cleanup steps unwound on shutdown.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []step

	once sync.Once
	err  error
}

// NewManager returns a Manager whose whole unwind is bounded by timeout.
// Zero means 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{log: log.WithComponent("shutdown"), timeout: timeout}
}

// Register pushes a step. Register resources as they are created; the last
// one registered stops first.
func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.steps = append(m.steps, step{name: name, fn: fn})
	m.mu.Unlock()
}

// RegisterSimple pushes a step that cannot fail.
func (m *Manager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitWithContext blocks until SIGINT, SIGTERM or SIGHUP arrives or ctx is
// done, then unwinds.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		m.log.Info("stopping", "reason", "context done")
	} else {
		m.log.Info("stopping", "reason", "signal")
	}
	return m.Shutdown()
}

// Shutdown runs the steps one at a time, newest first, under a shared
// deadline. A step still running at the deadline is abandoned along with
// every step below it. Step failures are logged and joined; later calls
// return the first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() { m.err = m.unwind() })
	return m.err
}

func (m *Manager) unwind() error {
	m.mu.Lock()
	steps := append([]step(nil), m.steps...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := time.Now()
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		finished, err := m.runStep(ctx, steps[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, err))
		}
		if !finished {
			m.log.Warn("shutdown deadline passed", "abandoned", steps[i].name, "skipped", i)
			errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, context.DeadlineExceeded))
			break
		}
	}

	m.log.Info("stopped", "steps", len(steps), "failed", len(errs), "duration_ms", time.Since(start).Milliseconds())
	return errors.Join(errs...)
}

func (m *Manager) runStep(ctx context.Context, s step) (bool, error) {
	done := make(chan error, 1)
	go func() { done <- s.fn(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			m.log.Error("shutdown step failed", "step", s.name, "error", err.Error())
		} else {
			m.log.Debug("shutdown step done", "step", s.name)
		}
		return true, err
	case <-ctx.Done():
		return false, nil
	}
}
