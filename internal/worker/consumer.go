package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mediaqueue/internal/delivery"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/cuongbtq/mediaqueue/internal/processor"
)

// Store is the durable job table as seen by a dispatcher.
type Store interface {
	ClaimNext(ctx context.Context, category domain.Category) (*domain.Job, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

// Registry answers whether a job's origin channel still exists.
type Registry interface {
	ChannelExists(ctx context.Context, guildID, channelID int64) (bool, error)
}

// Resolver reads per-guild limits and result destinations.
type Resolver interface {
	ResolveLimits(ctx context.Context, origin domain.Origin, category domain.Category) (processor.Limits, error)
	ResolveDestination(ctx context.Context, origin domain.Origin, category domain.Category) (*int64, error)
}

// Notifier talks back to the chat platform.
type Notifier interface {
	Notify(ctx context.Context, origin domain.Origin, text string) error
	Deliver(ctx context.Context, origin domain.Origin, target *int64, path string, meta delivery.Metadata) error
	OpenStatus(ctx context.Context, jobID int64, origin domain.Origin, text string) (delivery.Status, error)
}

// Artifacts owns the scratch directories of in-flight jobs.
type Artifacts interface {
	Root() string
	Acquire(category domain.Category) (string, error)
	Adopt(path string) (string, error)
	Release(dir string)
	Discard(path string)
}

// claim asks the store for the oldest pending job. The second result
// reports a store failure.
func (d *Dispatcher) claim(ctx context.Context) (*domain.Job, bool) {
	job, err := d.store.ClaimNext(ctx, d.category)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		metrics.ClaimErrors.WithLabelValues(string(d.category)).Inc()
		d.logger.Error("Failed to claim job",
			slog.Any("error", err),
			slog.Duration("retry_in", d.retryInterval),
		)
		return nil, true
	}
	if job != nil {
		d.logger.Debug("Job claimed",
			slog.Int64("job_id", job.ID),
			slog.Int64("guild_id", job.GuildID),
		)
	}
	return job, false
}
