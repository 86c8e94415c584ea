package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/artifact"
	"github.com/cuongbtq/mediaqueue/internal/delivery"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/processor"
	"github.com/cuongbtq/mediaqueue/internal/progress"
)

// processJob runs a claimed job through execution, reporting and cleanup.
// It never returns an error: every outcome ends in a terminal state.
func (d *Dispatcher) processJob(ctx context.Context, job *domain.Job) {
	started := time.Now()
	logger := d.logger.With(slog.Int64("job_id", job.ID))

	// A claimed job runs to the end even when the worker is shutting down;
	// only the category timeout bounds it.
	jobCtx := context.WithoutCancel(ctx)

	var scratch string
	defer func() {
		d.cleanup(logger, job, scratch)
		logger.Debug("Job cleaned up", slog.Duration("elapsed", time.Since(started)))
	}()
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopPanics.WithLabelValues(string(d.category)).Inc()
			logger.Error("Job panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			d.finish(jobCtx, logger, job, outcome{err: fmt.Errorf("internal error: %v", r)}, started)
		}
	}()

	// Step 1: make sure there is still somewhere to answer
	exists, err := d.registry.ChannelExists(jobCtx, job.GuildID, job.ChannelID)
	if err != nil {
		logger.Warn("Channel registry unavailable, assuming channel exists",
			slog.Any("error", err),
		)
		exists = true
	}
	if !exists {
		logger.Info("Origin channel no longer exists",
			slog.Int64("channel_id", job.ChannelID),
		)
		d.markFailed(jobCtx, logger, job, domain.ErrChannelNotFound.Error())
		metrics.ObserveJob(string(d.category), metrics.OutcomeChannelMissing, time.Since(started))
		return
	}

	// Step 2: limits and destination are read fresh for every job
	limits, err := d.resolver.ResolveLimits(jobCtx, job.Origin, d.category)
	if err != nil {
		logger.Warn("Failed to resolve limits, using defaults", slog.Any("error", err))
	}
	dest, err := d.resolver.ResolveDestination(jobCtx, job.Origin, d.category)
	if err != nil {
		logger.Warn("Failed to resolve destination, replying in place", slog.Any("error", err))
		dest = nil
	}

	// Step 3: scratch space
	scratch, err = d.scratchDir(logger, job)
	if err != nil {
		d.finish(jobCtx, logger, job, outcome{err: err}, started)
		return
	}

	// Step 4: status message and progress
	pres := presentationFor(d.category)
	status, err := d.notifier.OpenStatus(jobCtx, job.ID, job.Origin, pres.initial())
	if err != nil {
		logger.Warn("Failed to open status message", slog.Any("error", err))
		status = nil
	}

	var run *progress.Run
	if status != nil {
		run = d.reporter.Start(jobCtx, status, pres.Label, pres.Style)
	}

	logger.Debug("Executing job", slog.String("scratch", scratch))
	out, execErr := d.execute(jobCtx, job, limits, scratch, run)
	if run != nil {
		run.Stop()
	}

	d.finish(jobCtx, logger, job, outcome{
		out:    out,
		err:    execErr,
		limits: limits,
		dest:   dest,
		status: status,
	}, started)
}

// scratchDir adopts the directory holding an uploaded input, or creates a
// fresh one.
func (d *Dispatcher) scratchDir(logger *slog.Logger, job *domain.Job) (string, error) {
	if d.category.TakesUpload() {
		dir, err := d.artifacts.Adopt(job.Payload)
		if err == nil {
			return dir, nil
		}
		logger.Debug("Input not adoptable, using a fresh scratch dir", slog.Any("error", err))
	}
	dir, err := d.artifacts.Acquire(d.category)
	if err != nil {
		return "", fmt.Errorf("failed to prepare scratch dir: %w", err)
	}
	return dir, nil
}

type procResult struct {
	out processor.Output
	err error
}

// execute calls the processor in a child goroutine bounded by the category
// timeout.
func (d *Dispatcher) execute(ctx context.Context, job *domain.Job, limits processor.Limits, scratch string, run *progress.Run) (processor.Output, error) {
	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	exec := processor.Exec{ScratchDir: scratch, Progress: func(int) {}}
	if run != nil {
		exec.Progress = run.Report
	}

	done := make(chan procResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Processor panicked",
					slog.Int64("job_id", job.ID),
					slog.String("panic", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())),
				)
				done <- procResult{err: domain.NewProcessorError(d.category, fmt.Errorf("processor panic: %v", r))}
			}
		}()
		out, err := d.proc.Process(execCtx, job.Payload, limits, exec)
		done <- procResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return res.out, d.classify(execCtx, res.err)
		}
		return res.out, checkOutput(res.out, limits)
	case <-execCtx.Done():
		return processor.Output{}, d.classify(execCtx, execCtx.Err())
	}
}

func (d *Dispatcher) classify(execCtx context.Context, err error) error {
	var procErr *domain.ProcessorError
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return domain.ErrTimeout
	case errors.As(err, &procErr):
		return err
	default:
		return domain.NewProcessorError(d.category, err)
	}
}

func checkOutput(out processor.Output, limits processor.Limits) error {
	if out.Path == "" {
		return domain.ErrOutputMissing
	}
	info, err := os.Stat(out.Path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return domain.ErrOutputMissing
	}
	if limits.MaxOutputBytes > 0 && info.Size() > limits.MaxOutputBytes {
		return &domain.TooLargeError{Size: info.Size(), Limit: limits.MaxOutputBytes}
	}
	return nil
}

// cleanup releases the scratch dir and any input artifact left outside it.
// An upload that was never adopted takes its job directory with it. Inputs
// outside the scratch root are never touched.
func (d *Dispatcher) cleanup(logger *slog.Logger, job *domain.Job, scratch string) {
	d.artifacts.Release(scratch)

	if !d.category.TakesUpload() || job.Payload == "" {
		return
	}
	if scratch != "" && artifact.Contains(scratch, job.Payload) {
		return
	}
	if artifact.Contains(d.artifacts.Root(), job.Payload) {
		if dir, err := d.artifacts.Adopt(job.Payload); err == nil && dir != scratch {
			d.artifacts.Release(dir)
			return
		}
		d.artifacts.Discard(job.Payload)
		return
	}
	logger.Debug("Input outside scratch root left in place", slog.String("input", job.Payload))
}

// outcome is everything finish needs to settle a job.
type outcome struct {
	out    processor.Output
	err    error
	limits processor.Limits
	dest   *int64
	status delivery.Status
}

// finish writes the terminal state, delivers the artifact and tells the user.
func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, job *domain.Job, o outcome, started time.Time) {
	ctx, cancel := context.WithTimeout(ctx, d.finalizeTimeout)
	defer cancel()

	pres := presentationFor(d.category)
	var tooLarge *domain.TooLargeError
	var text, result string

	switch {
	case o.err == nil:
		result = metrics.OutcomeCompleted
		d.markCompleted(ctx, logger, job)
		text = d.deliver(ctx, logger, job, o, pres)

	case errors.As(o.err, &tooLarge):
		result = metrics.OutcomeTooLarge
		d.markCompleted(ctx, logger, job)
		text = fmt.Sprintf("Done, but the file is too large for Discord (%s > %s for this server). Boost the server for a higher limit.",
			processor.FormatMB(tooLarge.Size), processor.FormatMB(tooLarge.Limit))

	default:
		result = metrics.OutcomeFailed
		if errors.Is(o.err, domain.ErrTimeout) {
			result = metrics.OutcomeTimeout
		}
		logger.Warn("Job failed", slog.Any("error", o.err))
		d.markFailed(ctx, logger, job, o.err.Error())
		text = fmt.Sprintf("%s: %s", pres.FailPrefix, o.err.Error())
	}

	d.reply(ctx, logger, job, o.status, text)

	elapsed := time.Since(started)
	metrics.ObserveJob(string(d.category), result, elapsed)
	logger.Info("Job finished",
		slog.String("outcome", result),
		slog.Duration("elapsed", elapsed),
	)
}

// deliver sends the artifact and returns the final status text. A failed
// upload to the results channel falls back to the origin channel.
func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, job *domain.Job, o outcome, pres presentation) string {
	meta := delivery.Metadata{JobID: job.ID, Category: d.category, Caption: o.out.Info}

	target := o.dest
	err := d.notifier.Deliver(ctx, job.Origin, target, o.out.Path, meta)
	if err != nil && target != nil {
		logger.Warn("Failed to deliver to results channel, falling back to origin",
			slog.Int64("target", *target),
			slog.Any("error", err),
		)
		target = nil
		err = d.notifier.Deliver(ctx, job.Origin, nil, o.out.Path, meta)
	}
	if err != nil {
		logger.Error("Failed to deliver artifact", slog.Any("error", err))
		return "Done, but the file could not be sent."
	}

	text := pres.DoneText
	if target != nil {
		text = fmt.Sprintf("Done! Your file was sent to <#%d>.", *target)
	}
	if o.out.Info != "" {
		text += "\n" + o.out.Info
	}
	return text
}

// reply edits the status message, falling back to a fresh reply.
func (d *Dispatcher) reply(ctx context.Context, logger *slog.Logger, job *domain.Job, status delivery.Status, text string) {
	if status != nil {
		err := status.Edit(ctx, text)
		if err == nil {
			return
		}
		logger.Warn("Failed to edit status message", slog.Any("error", err))
	}
	if err := d.notifier.Notify(ctx, job.Origin, text); err != nil {
		logger.Error("Failed to notify user", slog.Any("error", err))
	}
}

func (d *Dispatcher) markCompleted(ctx context.Context, logger *slog.Logger, job *domain.Job) {
	if err := d.store.MarkCompleted(ctx, job.ID); err != nil {
		logger.Error("Failed to mark job completed", slog.Any("error", err))
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, logger *slog.Logger, job *domain.Job, msg string) {
	if err := d.store.MarkFailed(ctx, job.ID, msg); err != nil {
		logger.Error("Failed to mark job failed", slog.Any("error", err))
	}
}
