package settings

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/processor"
)

const (
	// DefaultUploadLimit applies to guilds without a stored limit.
	DefaultUploadLimit int64 = 8 * 1024 * 1024
	// HighResolutionThreshold is the upload limit from which video downloads use 1080p.
	HighResolutionThreshold int64 = 50 * 1024 * 1024
)

// Lookup is the configuration data the resolver reads.
type Lookup interface {
	SystemChannel(ctx context.Context, guildID int64, system string) (*int64, error)
	UploadLimit(ctx context.Context, guildID int64) (int64, error)
}

// CategoryDefaults are static, config-file limits for one category.
type CategoryDefaults struct {
	MaxInputBytes    int64
	MaxDimension     int
	Model            string
	AudioBitrateKbps int
	MaxDuration      time.Duration
}

// Resolver turns stored guild configuration into per-job limits and destinations.
// Nothing is cached: every call reads the current values.
type Resolver struct {
	lookup             Lookup
	defaultUploadLimit int64
	categories         map[domain.Category]CategoryDefaults
	logger             *slog.Logger
}

// NewResolver creates a Resolver. A non-positive defaultUploadLimit selects DefaultUploadLimit.
func NewResolver(lookup Lookup, defaultUploadLimit int64, categories map[domain.Category]CategoryDefaults, logger *slog.Logger) *Resolver {
	if defaultUploadLimit <= 0 {
		defaultUploadLimit = DefaultUploadLimit
	}
	return &Resolver{
		lookup:             lookup,
		defaultUploadLimit: defaultUploadLimit,
		categories:         categories,
		logger:             logger,
	}
}

// UploadLimit returns the guild's delivery limit. On lookup failure the
// default is returned together with the error.
func (r *Resolver) UploadLimit(ctx context.Context, guildID int64) (int64, error) {
	limit, err := r.lookup.UploadLimit(ctx, guildID)
	if err != nil {
		return r.defaultUploadLimit, err
	}
	if limit <= 0 {
		return r.defaultUploadLimit, nil
	}
	return limit, nil
}

// ResolveLimits returns the limits for a job of category from origin.
// On lookup failure, limits built from defaults are returned with the error.
func (r *Resolver) ResolveLimits(ctx context.Context, origin domain.Origin, category domain.Category) (processor.Limits, error) {
	uploadLimit, err := r.UploadLimit(ctx, origin.GuildID)

	defaults := r.categories[category]

	maxInput := defaults.MaxInputBytes
	if maxInput <= 0 || maxInput > uploadLimit {
		maxInput = uploadLimit
	}

	maxHeight := 720
	if uploadLimit >= HighResolutionThreshold {
		maxHeight = 1080
	}

	return processor.Limits{
		MaxInputBytes:    maxInput,
		MaxOutputBytes:   uploadLimit,
		MaxDimension:     defaults.MaxDimension,
		Model:            defaults.Model,
		MaxHeight:        maxHeight,
		AudioBitrateKbps: defaults.AudioBitrateKbps,
		MaxDuration:      defaults.MaxDuration,
	}, err
}

// ResolveDestination returns the results channel registered for category, or
// nil when results go back to the origin channel.
func (r *Resolver) ResolveDestination(ctx context.Context, origin domain.Origin, category domain.Category) (*int64, error) {
	channelID, err := r.lookup.SystemChannel(ctx, origin.GuildID, category.ResultsSystem())
	if err != nil {
		return nil, err
	}
	if channelID != nil && *channelID == origin.ChannelID {
		return nil, nil
	}
	return channelID, nil
}
