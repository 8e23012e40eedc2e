package supervisor

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// Supervisor runs background tasks behind a recover boundary so that a
// failure in one task is logged and counted without taking down the process
// or any connection.
type Supervisor struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing bool
}

// New creates a Supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Go runs fn in its own goroutine. A panic is converted into a
// *domain.SupervisionFailure; it and any returned error are logged under the
// task name. Go reports false, without running fn, once Wait has been called.
func (s *Supervisor) Go(ctx context.Context, task string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := Safely(task, func() error { return fn(ctx) }); err != nil {
			Report(ctx, task, err)
		}
	}()
	return true
}

// Wait stops accepting tasks and blocks until running tasks finish or ctx is
// done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Safely calls fn and turns a panic into a *domain.SupervisionFailure.
func Safely(task string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.SupervisionFailure{Task: task, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Report logs a task failure and counts it.
func Report(ctx context.Context, task string, err error) {
	l := log.Ctx(ctx)
	metrics.SupervisedTaskFailures.WithLabelValues(task).Inc()

	evt := l.Error().Err(err).Str(log.FieldTask, task)
	var sf *domain.SupervisionFailure
	if errors.As(err, &sf) {
		evt = evt.Bytes("stack", sf.Stack)
	}
	evt.Msg("supervised task failed")
}
