package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
)

var percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)

// Download fetches media from a URL with an external downloader and picks
// the produced file from the scratch directory.
type Download struct {
	cmd        Command
	extensions []string
	logger     *slog.Logger
}

// NewVideoDownload creates a downloader that keeps .mp4, .webm or .mkv output.
// Placeholders: {url} {dir} {max_height} {max_duration}.
func NewVideoDownload(cmd Command, logger *slog.Logger) *Download {
	return &Download{cmd: cmd, extensions: []string{".mp4", ".webm", ".mkv"}, logger: logger}
}

// NewAudioDownload creates a downloader that keeps .mp3 output.
// Placeholders: {url} {dir} {bitrate} {max_duration}.
func NewAudioDownload(cmd Command, logger *slog.Logger) *Download {
	return &Download{cmd: cmd, extensions: []string{".mp3"}, logger: logger}
}

func (p *Download) Process(ctx context.Context, input string, limits Limits, exec Exec) (Output, error) {
	url := strings.TrimSpace(input)
	if !ValidURL(url) {
		return Output{}, fmt.Errorf("%w: not a YouTube URL", domain.ErrInvalidInput)
	}

	_, err := p.cmd.run(ctx, p.logger, exec.ScratchDir, map[string]string{
		"url":          url,
		"dir":          exec.ScratchDir,
		"max_height":   strconv.Itoa(limits.MaxHeight),
		"bitrate":      strconv.Itoa(limits.AudioBitrateKbps),
		"max_duration": strconv.Itoa(int(limits.MaxDuration / time.Second)),
	}, func(line string) {
		if pct, ok := ParsePercent(line); ok {
			exec.report(pct)
		}
	})
	if err != nil {
		return Output{}, err
	}

	path, err := newestFile(exec.ScratchDir, p.extensions)
	if err != nil {
		return Output{}, err
	}

	return Output{Path: path}, nil
}

// ParsePercent extracts the last percentage printed on a downloader line.
func ParsePercent(line string) (int, bool) {
	matches := percentPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return int(v), true
}

// newestFile returns the most recently modified file in dir with one of exts,
// or "" when there is none.
func newestFile(dir string, exts []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read scratch dir: %w", err)
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
