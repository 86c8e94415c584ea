package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/artifact"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/processor"
)

// Store is the enqueue side of the job table.
type Store interface {
	Enqueue(ctx context.Context, category domain.Category, origin domain.Origin, payload string) (int64, error)
	CountPending(ctx context.Context, category domain.Category) (int, error)
}

// Limits resolves the per-guild input limit of a category.
type Limits interface {
	ResolveLimits(ctx context.Context, origin domain.Origin, category domain.Category) (processor.Limits, error)
}

// Uploads persists input artifacts until a worker adopts them.
type Uploads interface {
	Save(category domain.Category, ext string, r io.Reader, limit int64) (string, int64, error)
	Release(dir string)
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	JobID    int64
	Position int
}

// QueueMessage is the reply shown to the user. Empty when the job is next.
func (r Receipt) QueueMessage() string {
	if r.Position > 1 {
		return fmt.Sprintf("You're #%d in the queue", r.Position)
	}
	return ""
}

// Service validates requests and turns them into pending jobs.
type Service struct {
	store   Store
	uploads Uploads
	limits  Limits
	logger  *slog.Logger
}

// NewService creates a submission service.
func NewService(store Store, uploads Uploads, limits Limits, logger *slog.Logger) *Service {
	return &Service{store: store, uploads: uploads, limits: limits, logger: logger}
}

// Submit enqueues a job whose payload is already in place and reports its
// queue position.
func (s *Service) Submit(ctx context.Context, category domain.Category, origin domain.Origin, payload string) (Receipt, error) {
	if !category.Valid() {
		return Receipt{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidJob, category)
	}
	payload = strings.TrimSpace(payload)
	if !category.TakesUpload() && !processor.ValidURL(payload) {
		return Receipt{}, fmt.Errorf("%w: not a supported video URL", domain.ErrInvalidJob)
	}

	id, err := s.store.Enqueue(ctx, category, origin, payload)
	if err != nil {
		return Receipt{}, err
	}
	metrics.JobsSubmitted.WithLabelValues(string(category)).Inc()

	pos, err := s.Position(ctx, category)
	if err != nil {
		s.logger.Warn("Failed to read queue position",
			slog.Int64("job_id", id),
			slog.Any("error", err),
		)
		pos = 0
	}

	s.logger.Info("Job submitted",
		slog.Int64("job_id", id),
		slog.String("category", string(category)),
		slog.Int64("guild_id", origin.GuildID),
		slog.Int("position", pos),
	)
	return Receipt{JobID: id, Position: pos}, nil
}

// Position returns the number of pending jobs in category.
func (s *Service) Position(ctx context.Context, category domain.Category) (int, error) {
	n, err := s.store.CountPending(ctx, category)
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth.WithLabelValues(string(category)).Set(float64(n))
	return n, nil
}

// SaveUpload stores an uploaded input for category and returns its path.
// size is the declared length, or zero when unknown.
func (s *Service) SaveUpload(ctx context.Context, category domain.Category, origin domain.Origin, filename string, size int64, r io.Reader) (string, error) {
	if !category.TakesUpload() {
		return "", fmt.Errorf("%w: %s does not take uploads", domain.ErrInvalidJob, category)
	}
	if !processor.ValidExtension(category, filename) {
		return "", fmt.Errorf("%w: unsupported file type %q (use %s)", domain.ErrInvalidInput,
			filepath.Ext(filename), strings.Join(processor.AllowedExtensions(category), ", "))
	}

	limits, err := s.limits.ResolveLimits(ctx, origin, category)
	if err != nil {
		s.logger.Warn("Failed to resolve upload limit, using defaults",
			slog.Int64("guild_id", origin.GuildID),
			slog.Any("error", err),
		)
	}

	kind := inputKind(category)
	if err := processor.CheckSize(kind, size, limits.MaxInputBytes); err != nil {
		return "", err
	}

	path, n, err := s.uploads.Save(category, filepath.Ext(filename), r, limits.MaxInputBytes)
	if errors.Is(err, artifact.ErrLimitExceeded) {
		return "", processor.CheckSize(kind, n, limits.MaxInputBytes)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Upload saves an input and enqueues it. The saved file is removed when the
// job cannot be enqueued.
func (s *Service) Upload(ctx context.Context, category domain.Category, origin domain.Origin, filename string, size int64, r io.Reader) (Receipt, error) {
	path, err := s.SaveUpload(ctx, category, origin, filename, size, r)
	if err != nil {
		return Receipt{}, err
	}

	receipt, err := s.Submit(ctx, category, origin, path)
	if err != nil {
		s.uploads.Release(filepath.Dir(path))
		return Receipt{}, err
	}
	return receipt, nil
}

func inputKind(category domain.Category) string {
	if category == domain.CategoryDedup {
		return "Video"
	}
	return "Image"
}
