package processor

import (
	"context"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
)

// Limits are the per-job constraints resolved from guild configuration at
// dispatch time.
type Limits struct {
	MaxInputBytes    int64
	MaxOutputBytes   int64
	MaxDimension     int
	Model            string
	MaxHeight        int
	AudioBitrateKbps int
	MaxDuration      time.Duration
}

// Exec is the per-job execution context handed to a processor.
type Exec struct {
	ScratchDir string
	// Progress receives percentages in [0, 100]. May be nil.
	Progress func(pct int)
}

func (e Exec) report(pct int) {
	if e.Progress != nil {
		e.Progress(pct)
	}
}

// Output describes a produced artifact. An empty Path means nothing was produced.
type Output struct {
	Path string
	Info string
}

// Processor executes one category of media work.
type Processor interface {
	Process(ctx context.Context, input string, limits Limits, exec Exec) (Output, error)
}

// Set groups the concrete processor for each category.
type Set struct {
	BackgroundRemoval Processor
	Dedup             Processor
	DownloadVideo     Processor
	DownloadAudio     Processor
}

// For returns the processor registered for category, or nil.
func (s Set) For(category domain.Category) Processor {
	switch category {
	case domain.CategoryBackgroundRemoval:
		return s.BackgroundRemoval
	case domain.CategoryDedup:
		return s.Dedup
	case domain.CategoryDownloadVideo:
		return s.DownloadVideo
	case domain.CategoryDownloadAudio:
		return s.DownloadAudio
	default:
		return nil
	}
}
