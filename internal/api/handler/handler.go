package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/jobstore"
	"github.com/cuongbtq/mediaqueue/internal/submission"
	"github.com/gin-gonic/gin"
)

// JobStore is the read and operator side of the job table.
type JobStore interface {
	Get(ctx context.Context, id int64) (*domain.Job, error)
	List(ctx context.Context, filter jobstore.JobFilter) ([]domain.Job, error)
	Requeue(ctx context.Context, id int64) error
}

// Submitter accepts new jobs.
type Submitter interface {
	Submit(ctx context.Context, category domain.Category, origin domain.Origin, payload string) (submission.Receipt, error)
	Upload(ctx context.Context, category domain.Category, origin domain.Origin, filename string, size int64, r io.Reader) (submission.Receipt, error)
	Position(ctx context.Context, category domain.Category) (int, error)
}

// StatusReader returns the live status text the worker mirrors for a job.
type StatusReader interface {
	GetStatus(ctx context.Context, jobID int64) (string, bool, error)
}

// SettingsStore writes guild configuration.
type SettingsStore interface {
	SetSystemChannel(ctx context.Context, guildID int64, system string, channelID int64) error
	RemoveSystemChannel(ctx context.Context, guildID int64, system string) (bool, error)
	SetUploadLimit(ctx context.Context, guildID, limit int64) error
}

// ChannelSync replaces the channel registry of a guild.
type ChannelSync interface {
	SyncChannels(ctx context.Context, guildID int64, channelIDs []int64) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobStore
	Submitter Submitter
	Statuses  StatusReader
	Settings  SettingsStore
	Channels  ChannelSync
	// MaxUploadLimit caps guild upload limits. Zero means no cap.
	MaxUploadLimit int64
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobStore
	submitter Submitter
	statuses  StatusReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		submitter: deps.Submitter,
		statuses:  deps.Statuses,
	}
}

// GuildHandler handles guild configuration requests
type GuildHandler struct {
	logger         *slog.Logger
	settings       SettingsStore
	channels       ChannelSync
	maxUploadLimit int64
}

// NewGuildHandler creates a new GuildHandler instance
func NewGuildHandler(deps *Dependencies) *GuildHandler {
	return &GuildHandler{
		logger:         deps.Logger,
		settings:       deps.Settings,
		channels:       deps.Channels,
		maxUploadLimit: deps.MaxUploadLimit,
	}
}

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidJob), errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrJobNotClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.Error(fallback, slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job store unavailable"})
	default:
		logger.Error(fallback, slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
