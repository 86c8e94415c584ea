package artifact

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/google/uuid"
)

// ErrLimitExceeded is returned by Save when the stream is larger than allowed.
var ErrLimitExceeded = errors.New("upload exceeds size limit")

// Manager owns per-job scratch directories of the form <root>/<category>/<uuid>.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager creates a Manager rooted at root.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	return &Manager{root: abs, logger: logger}, nil
}

// Root returns the absolute scratch root.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh, unshared scratch directory for category.
func (m *Manager) Acquire(category domain.Category) (string, error) {
	dir := filepath.Join(m.root, string(category), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return dir, nil
}

// Adopt returns the scratch directory that owns a persisted input artifact.
// It fails when path does not live inside a job directory under root.
func (m *Manager) Adopt(path string) (string, error) {
	dir := filepath.Dir(filepath.Clean(path))
	if !m.owns(dir) {
		return "", fmt.Errorf("artifact %q is outside the scratch root", path)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("artifact dir unavailable: %w", err)
	}
	return dir, nil
}

// Contains reports whether path lies inside dir.
func Contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// owns reports whether dir is a job directory (<category>/<id>) under root.
func (m *Manager) owns(dir string) bool {
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || !Contains(m.root, dir) {
		return false
	}
	return len(strings.Split(rel, string(filepath.Separator))) == 2
}

// Save streams r into a new scratch directory as input<ext>, refusing more
// than limit bytes when limit > 0. On any failure the directory is released.
func (m *Manager) Save(category domain.Category, ext string, r io.Reader, limit int64) (string, int64, error) {
	dir, err := m.Acquire(category)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, "input"+strings.ToLower(ext))
	f, err := os.Create(path)
	if err != nil {
		m.Release(dir)
		return "", 0, fmt.Errorf("failed to create input file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case err != nil:
		m.Release(dir)
		return "", n, fmt.Errorf("failed to write input file: %w", err)
	case closeErr != nil:
		m.Release(dir)
		return "", n, fmt.Errorf("failed to close input file: %w", closeErr)
	case limit > 0 && n > limit:
		m.Release(dir)
		return "", n, ErrLimitExceeded
	}

	return path, n, nil
}

// Release deletes every file in dir and then dir itself. Already removed
// entries are ignored; other failures are logged once and swallowed.
func (m *Manager) Release(dir string) {
	if dir == "" {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Failed to list scratch dir",
				slog.String("dir", dir),
				slog.Any("error", err),
			)
		}
		return
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove scratch file",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}

	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove scratch dir",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
	}
}

// Discard removes a single file, tolerating its absence.
func (m *Manager) Discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove artifact",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}
