package processor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/cuongbtq/mediaqueue/internal/domain"
)

// BackgroundRemoval cuts the background out of an image with an external
// segmentation tool and writes a PNG into the scratch directory.
type BackgroundRemoval struct {
	cmd    Command
	logger *slog.Logger
}

// NewBackgroundRemoval creates a background removal processor running cmd.
// Placeholders: {input} {output} {model} {max_dimension}.
func NewBackgroundRemoval(cmd Command, logger *slog.Logger) *BackgroundRemoval {
	return &BackgroundRemoval{cmd: cmd, logger: logger}
}

func (p *BackgroundRemoval) Process(ctx context.Context, input string, limits Limits, exec Exec) (Output, error) {
	if err := checkFile(domain.CategoryBackgroundRemoval, "image", input, limits.MaxInputBytes); err != nil {
		return Output{}, err
	}

	output := filepath.Join(exec.ScratchDir, "output.png")
	exec.report(0)

	_, err := p.cmd.run(ctx, p.logger, exec.ScratchDir, map[string]string{
		"input":         input,
		"output":        output,
		"model":         limits.Model,
		"max_dimension": strconv.Itoa(limits.MaxDimension),
	}, nil)
	if err != nil {
		return Output{}, err
	}

	return Output{Path: output}, nil
}

// Dedup removes duplicate frames from a video clip.
type Dedup struct {
	cmd    Command
	logger *slog.Logger
}

// NewDedup creates a dedup processor running cmd.
// Placeholders: {input} {output}. The last stdout line is reported as stats.
func NewDedup(cmd Command, logger *slog.Logger) *Dedup {
	return &Dedup{cmd: cmd, logger: logger}
}

func (p *Dedup) Process(ctx context.Context, input string, limits Limits, exec Exec) (Output, error) {
	if err := checkFile(domain.CategoryDedup, "video", input, limits.MaxInputBytes); err != nil {
		return Output{}, err
	}

	output := filepath.Join(exec.ScratchDir, "output_dedup.mp4")

	stats, err := p.cmd.run(ctx, p.logger, exec.ScratchDir, map[string]string{
		"input":  input,
		"output": output,
	}, nil)
	if err != nil {
		return Output{}, err
	}

	return Output{Path: output, Info: stats}, nil
}
