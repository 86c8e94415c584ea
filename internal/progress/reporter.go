package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Steps is the synthesized percentage schedule. The last step is held until
// the job finishes.
var Steps = []int{0, 15, 25, 40, 55, 70, 85, 90}

// ceiling keeps reported progress below 100 until the job really completes.
const ceiling = 99

// Editor updates a single status message in place.
type Editor interface {
	Edit(ctx context.Context, text string) error
}

// Style selects how progress is rendered.
type Style int

const (
	// StylePercent renders "<label> **P%**".
	StylePercent Style = iota
	// StyleIndicator renders an elapsed-time indicator for processors
	// without granular progress.
	StyleIndicator
)

// Reporter periodically edits a status message while a job executes.
type Reporter struct {
	interval time.Duration
	logger   *slog.Logger
}

// NewReporter creates a Reporter ticking every interval.
func NewReporter(interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reporter{interval: interval, logger: logger}
}

// Run is one active progress stream.
type Run struct {
	cancel   context.CancelFunc
	done     chan struct{}
	reported atomic.Int32
	stopOnce sync.Once
}

// Start begins editing ed until the returned Run is stopped or ctx ends.
func (r *Reporter) Start(ctx context.Context, ed Editor, label string, style Style) *Run {
	ctx, cancel := context.WithCancel(ctx)
	run := &Run{cancel: cancel, done: make(chan struct{})}
	run.reported.Store(-1)

	go r.loop(ctx, run, ed, label, style)
	return run
}

// Report records processor-supplied progress. The displayed value never
// decreases.
func (run *Run) Report(pct int) {
	if pct > ceiling {
		pct = ceiling
	}
	for {
		cur := run.reported.Load()
		if int32(pct) <= cur {
			return
		}
		if run.reported.CompareAndSwap(cur, int32(pct)) {
			return
		}
	}
}

// Stop halts the stream and waits for the last edit to finish. Safe to call twice.
func (run *Run) Stop() {
	run.stopOnce.Do(func() {
		run.cancel()
		<-run.done
	})
}

func (r *Reporter) loop(ctx context.Context, run *Run, ed Editor, label string, style Style) {
	defer close(run.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	started := time.Now()
	step := 0
	shown := -1
	last := ""

	for {
		var text string
		switch style {
		case StyleIndicator:
			text = Indicator(label, time.Since(started))
		default:
			pct := Steps[step]
			if rep := int(run.reported.Load()); rep > pct {
				pct = rep
			}
			if pct < shown {
				pct = shown
			}
			shown = pct
			text = Percent(label, pct)
		}

		if text != last {
			if err := ed.Edit(ctx, text); err != nil {
				r.logger.Debug("Progress edit failed",
					slog.String("label", label),
					slog.Any("error", err),
				)
			}
			last = text
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if step < len(Steps)-1 {
				step++
			}
		}
	}
}

// Percent formats a percentage status line.
func Percent(label string, pct int) string {
	return fmt.Sprintf("%s **%d%%**", label, pct)
}

// Indicator formats an elapsed-time status line.
func Indicator(label string, elapsed time.Duration) string {
	secs := int(elapsed / time.Second)
	return fmt.Sprintf("%s (still working, %d:%02d elapsed)", label, secs/60, secs%60)
}
