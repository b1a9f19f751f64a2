// Package ingest contains the background runners that pull deposits,
// collection tokens and gas prices into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/store"
)

// Runner defines the interface for background runner implementations.
// Runners are long-running tasks that perform periodic work.
type Runner interface {
	// Start begins the runner's main loop
	// This is a blocking call that runs until the context is canceled
	Start(ctx context.Context) error

	// Stop gracefully stops the runner
	// This should wait for any in-progress work to complete
	Stop(ctx context.Context) error

	// Name returns the runner's name for logging and identification
	Name() string
}

// baseRunner carries the loop mechanics shared by all periodic runners:
// single-start guard, stop signalling, maintenance pause and interruptible sleep.
type baseRunner struct {
	name      string
	interval  time.Duration
	clock     adapter.Clock
	store     store.Store
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

func newBaseRunner(name string, interval time.Duration, clock adapter.Clock, st store.Store) baseRunner {
	return baseRunner{
		name:      name,
		interval:  interval,
		clock:     clock,
		store:     st,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the runner's name
func (r *baseRunner) Name() string {
	return r.name
}

// run drives the periodic loop, invoking cycle once per interval.
// Cycles are skipped while the maintenance flag is set.
func (r *baseRunner) run(ctx context.Context, cycle func(context.Context) error) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("runner %s already running", r.name)
	}
	defer func() {
		r.running.Store(false)
		close(r.stoppedCh) // Signal that we've stopped
	}()

	logger.InfoCtx(ctx, "Starting runner",
		zap.String("runner", r.name),
		zap.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Runner stopping due to context cancellation",
				zap.String("runner", r.name), zap.Error(ctx.Err()))
			return nil
		case <-r.stopChan:
			logger.InfoCtx(ctx, "Runner stop requested", zap.String("runner", r.name))
			return nil
		default:
		}

		paused, err := r.store.MaintenanceEnabled(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, err, zap.String("runner", r.name))
		} else if paused {
			logger.DebugCtx(ctx, "Maintenance enabled, skipping cycle", zap.String("runner", r.name))
		} else if err := cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err, zap.String("runner", r.name))
		}

		if !r.sleep(ctx, r.interval) {
			return nil
		}
	}
}

// Stop gracefully stops the runner with timeout support
func (r *baseRunner) Stop(ctx context.Context) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping runner", zap.String("runner", r.name))

	close(r.stopChan)

	select {
	case <-r.stoppedCh:
		logger.InfoCtx(ctx, "Runner stopped gracefully", zap.String("runner", r.name))
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Runner stop interrupted by context timeout", zap.String("runner", r.name))
		return ctx.Err()
	}
}

// sleep sleeps for the given duration but can be interrupted by context
// cancellation or a stop request. Returns false when interrupted.
func (r *baseRunner) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-r.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-r.stopChan:
		return false
	}
}
