package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/processor"
	"github.com/cuongbtq/mediaqueue/internal/progress"
)

// Dispatcher drains the queue of a single category, one job at a time.
type Dispatcher struct {
	category        domain.Category
	proc            processor.Processor
	timeout         time.Duration
	pollInterval    time.Duration
	retryInterval   time.Duration
	finalizeTimeout time.Duration

	store     Store
	registry  Registry
	resolver  Resolver
	notifier  Notifier
	artifacts Artifacts
	reporter  *progress.Reporter
	logger    *slog.Logger
}

// spawnDispatchers starts one goroutine per enabled category.
func (w *Worker) spawnDispatchers(ctx context.Context) {
	w.logger.Info("Spawning dispatchers",
		slog.Int("count", len(w.dispatchers)),
	)

	for _, d := range w.dispatchers {
		w.wg.Add(1)
		go func(d *Dispatcher) {
			defer w.wg.Done()
			d.Run(ctx)
		}(d)
	}
}

// Run polls for jobs until ctx is cancelled. The in-flight job is always
// finished before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Dispatcher started",
		slog.Duration("poll_interval", d.pollInterval),
		slog.Duration("timeout", d.timeout),
	)

	for {
		wait := d.iterate(ctx)
		if ctx.Err() != nil {
			d.logger.Info("Dispatcher stopped - context canceled")
			return
		}
		if wait == 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("Dispatcher stopped - context canceled")
			return
		case <-timer.C:
		}
	}
}

// iterate runs one Idle → Claimed → ... → Idle cycle and returns the pause
// before the next one.
func (d *Dispatcher) iterate(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopPanics.WithLabelValues(string(d.category)).Inc()
			d.logger.Error("Dispatcher iteration panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			wait = d.retryInterval
		}
	}()

	job, storeDown := d.claim(ctx)
	switch {
	case storeDown:
		return d.retryInterval
	case job == nil:
		return d.pollInterval
	}

	d.processJob(ctx, job)
	return 0
}
