package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, category, guild_id, channel_id, author_id, message_id,
	payload, status, error_message, created_at, claimed_at, finished_at`

// Store handles all job table operations for the API and the dispatchers
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a new Store instance
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts a pending job and returns its id
func (s *Store) Enqueue(ctx context.Context, category domain.Category, origin domain.Origin, payload string) (int64, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidJob, category)
	}
	if strings.TrimSpace(payload) == "" {
		return 0, fmt.Errorf("%w: empty payload", domain.ErrInvalidJob)
	}

	query := `
		INSERT INTO media_jobs (category, guild_id, channel_id, author_id, message_id, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		category,
		origin.GuildID,
		origin.ChannelID,
		origin.AuthorID,
		origin.MessageID,
		payload,
		domain.StatusPending,
	).Scan(&id)
	if err != nil {
		return 0, wrap("enqueue job", err)
	}

	s.logger.Info("Job enqueued",
		slog.Int64("job_id", id),
		slog.String("category", string(category)),
		slog.Int64("guild_id", origin.GuildID),
	)

	return id, nil
}

// CountPending returns the number of pending jobs in category
func (s *Store) CountPending(ctx context.Context, category domain.Category) (int, error) {
	query := `SELECT COUNT(*) FROM media_jobs WHERE category = $1 AND status = $2`

	var n int
	if err := s.db.GetContext(ctx, &n, query, category, domain.StatusPending); err != nil {
		return 0, wrap("count pending jobs", err)
	}
	return n, nil
}

// ClaimNext moves the oldest pending job of category to processing and returns it.
// It returns nil, nil when nothing is claimable. Rows locked by a concurrent
// claimer are skipped, so two claimers never receive the same job.
func (s *Store) ClaimNext(ctx context.Context, category domain.Category) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrap("begin claim", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := `
		SELECT id FROM media_jobs
		WHERE category = $1 AND status = $2
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var id int64
	err = tx.GetContext(ctx, &id, selectQuery, category, domain.StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("select next job", err)
	}

	updateQuery := `
		UPDATE media_jobs
		SET status = $1,
		    claimed_at = NOW()
		WHERE id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var job domain.Job
	err = tx.GetContext(ctx, &job, updateQuery, domain.StatusProcessing, id, domain.StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("Job claimed concurrently, skipping",
			slog.Int64("job_id", id),
		)
		return nil, nil
	}
	if err != nil {
		return nil, wrap("claim job", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrap("commit claim", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.Int64("job_id", job.ID),
		slog.String("category", string(job.Category)),
	)

	return &job, nil
}

// MarkCompleted moves a non-terminal job to completed.
// A missing or already terminal job is logged and ignored.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE media_jobs
		SET status = $1,
		    error_message = NULL,
		    finished_at = NOW()
		WHERE id = $2
		  AND status IN ($3, $4)
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusCompleted, id, domain.StatusPending, domain.StatusProcessing)
	if err != nil {
		return wrap("mark job completed", err)
	}

	return s.checkTransition(result, id, domain.StatusCompleted)
}

// MarkFailed moves a non-terminal job to failed with a message truncated to
// domain.MaxErrorLength. A missing or already terminal job is logged and ignored.
func (s *Store) MarkFailed(ctx context.Context, id int64, msg string) error {
	query := `
		UPDATE media_jobs
		SET status = $1,
		    error_message = $2,
		    finished_at = NOW()
		WHERE id = $3
		  AND status IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusFailed,
		domain.TruncateError(msg),
		id,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if err != nil {
		return wrap("mark job failed", err)
	}

	return s.checkTransition(result, id, domain.StatusFailed)
}

func (s *Store) checkTransition(result sql.Result, id int64, status domain.Status) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update - no rows affected (job missing or already terminal)",
			slog.Int64("job_id", id),
			slog.String("status", string(status)),
		)
		return nil
	}

	s.logger.Info("Job status updated",
		slog.Int64("job_id", id),
		slog.String("status", string(status)),
	)
	return nil
}

// Get retrieves a job by id
func (s *Store) Get(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM media_jobs WHERE id = $1`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, wrap("get job", err)
	}

	return &job, nil
}

// Requeue returns a processing job to pending. It is an operator action for
// jobs left behind by a worker that died mid-execution.
func (s *Store) Requeue(ctx context.Context, id int64) error {
	query := `
		UPDATE media_jobs
		SET status = $1,
		    claimed_at = NULL
		WHERE id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusPending, id, domain.StatusProcessing)
	if err != nil {
		return wrap("requeue job", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrJobNotClaimed
	}

	s.logger.Warn("Job requeued by operator",
		slog.Int64("job_id", id),
	)
	return nil
}
