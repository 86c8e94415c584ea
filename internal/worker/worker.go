package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/processor"
	"github.com/cuongbtq/mediaqueue/internal/progress"
)

// CategoryConfig enables a category and bounds its processor calls.
type CategoryConfig struct {
	Enabled bool
	Timeout time.Duration
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Store      Store
	Registry   Registry
	Resolver   Resolver
	Notifier   Notifier
	Artifacts  Artifacts
	Processors processor.Set
	Categories map[domain.Category]CategoryConfig

	PollInterval       time.Duration
	StoreRetryInterval time.Duration
	ProgressInterval   time.Duration
	FinalizeTimeout    time.Duration
	ShutdownTimeout    time.Duration
}

// Worker runs one dispatcher per enabled category.
type Worker struct {
	logger          *slog.Logger
	dispatchers     []*Dispatcher
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
	stopChan        chan struct{}
	stopOnce        sync.Once
}

// NewWorker creates a new worker instance. Every enabled category needs a
// processor.
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Resolver == nil || cfg.Notifier == nil || cfg.Artifacts == nil {
		return nil, fmt.Errorf("worker: store, registry, resolver, notifier and artifacts are required")
	}

	pollInterval := orDefault(cfg.PollInterval, 2*time.Second)
	retryInterval := orDefault(cfg.StoreRetryInterval, 5*time.Second)
	finalizeTimeout := orDefault(cfg.FinalizeTimeout, 30*time.Second)
	reporter := progress.NewReporter(cfg.ProgressInterval, cfg.Logger)

	w := &Worker{
		logger:          cfg.Logger,
		shutdownTimeout: orDefault(cfg.ShutdownTimeout, 30*time.Second),
		stopChan:        make(chan struct{}),
	}

	for _, category := range domain.Categories() {
		cc, ok := cfg.Categories[category]
		if !ok || !cc.Enabled {
			continue
		}
		proc := cfg.Processors.For(category)
		if proc == nil {
			return nil, fmt.Errorf("worker: category %s is enabled but has no processor", category)
		}

		w.dispatchers = append(w.dispatchers, &Dispatcher{
			category:        category,
			proc:            proc,
			timeout:         orDefault(cc.Timeout, 10*time.Minute),
			pollInterval:    pollInterval,
			retryInterval:   retryInterval,
			finalizeTimeout: finalizeTimeout,
			store:           cfg.Store,
			registry:        cfg.Registry,
			resolver:        cfg.Resolver,
			notifier:        cfg.Notifier,
			artifacts:       cfg.Artifacts,
			reporter:        reporter,
			logger:          cfg.Logger.With(slog.String("category", string(category))),
		})
	}

	if len(w.dispatchers) == 0 {
		return nil, fmt.Errorf("worker: no category enabled")
	}
	return w, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start runs the dispatchers and blocks until ctx is cancelled or Stop is
// called, then waits for in-flight jobs up to the shutdown timeout.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("categories", len(w.dispatchers)),
		slog.Duration("shutdown_timeout", w.shutdownTimeout),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.spawnDispatchers(runCtx)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
		w.logger.Info("Stopping worker...")
	}
	cancel()

	return w.wait()
}

func (w *Worker) wait() error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-timer.C:
		w.logger.Warn("Worker shutdown timed out, abandoning in-flight jobs")
		return fmt.Errorf("worker shutdown timed out after %s", w.shutdownTimeout)
	}
}

// Stop asks a running worker to shut down. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
}
