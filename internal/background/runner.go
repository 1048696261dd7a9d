package background

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"

	"github.com/customeros/sitestack/internal/logger"
)

// Runner executes fire-and-forget side effects on tracked goroutines so the
// server can drain them before exiting. A panicking task is logged and
// swallowed.
type Runner struct {
	wg     sync.WaitGroup
	logger logger.Logger
}

func NewRunner(log logger.Logger) *Runner {
	return &Runner{logger: log}
}

func (r *Runner) Go(name string, task func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Errorf("Background task %s panicked: %v\n%s", name, rec, debug.Stack())
			}
		}()
		task()
	}()
}

// Wait blocks until every started task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "background tasks still running")
	}
}
