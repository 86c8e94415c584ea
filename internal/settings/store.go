package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Store reads and writes per-guild channel registrations and upload limits
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// SystemChannel returns the channel registered for system in guildID, or nil.
func (s *Store) SystemChannel(ctx context.Context, guildID int64, system string) (*int64, error) {
	query := `SELECT channel_id FROM system_channels WHERE guild_id = $1 AND system = $2`

	var channelID int64
	err := s.db.GetContext(ctx, &channelID, query, guildID, system)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system channel: %w", err)
	}
	return &channelID, nil
}

// SystemForChannel returns the system a channel is registered as intake for, or "".
func (s *Store) SystemForChannel(ctx context.Context, guildID, channelID int64) (string, error) {
	query := `
		SELECT system FROM system_channels
		WHERE guild_id = $1 AND channel_id = $2 AND system NOT LIKE '%:results'
		ORDER BY system
		LIMIT 1
	`

	var system string
	err := s.db.GetContext(ctx, &system, query, guildID, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get channel system: %w", err)
	}
	return system, nil
}

// SetSystemChannel registers channelID for system in guildID, replacing any previous one.
func (s *Store) SetSystemChannel(ctx context.Context, guildID int64, system string, channelID int64) error {
	query := `
		INSERT INTO system_channels (guild_id, system, channel_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id, system)
		DO UPDATE SET channel_id = EXCLUDED.channel_id, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, guildID, system, channelID); err != nil {
		return fmt.Errorf("failed to set system channel: %w", err)
	}

	s.logger.Info("System channel set",
		slog.Int64("guild_id", guildID),
		slog.String("system", system),
		slog.Int64("channel_id", channelID),
	)
	return nil
}

// RemoveSystemChannel deletes the registration and reports whether one existed.
func (s *Store) RemoveSystemChannel(ctx context.Context, guildID int64, system string) (bool, error) {
	query := `DELETE FROM system_channels WHERE guild_id = $1 AND system = $2`

	result, err := s.db.ExecContext(ctx, query, guildID, system)
	if err != nil {
		return false, fmt.Errorf("failed to remove system channel: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UploadLimit returns the guild's configured upload limit in bytes, or 0 when unset.
func (s *Store) UploadLimit(ctx context.Context, guildID int64) (int64, error) {
	query := `SELECT upload_limit_bytes FROM guild_settings WHERE guild_id = $1`

	var limit int64
	err := s.db.GetContext(ctx, &limit, query, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get upload limit: %w", err)
	}
	return limit, nil
}

// SetUploadLimit stores the guild's upload limit in bytes.
func (s *Store) SetUploadLimit(ctx context.Context, guildID, limit int64) error {
	query := `
		INSERT INTO guild_settings (guild_id, upload_limit_bytes, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (guild_id)
		DO UPDATE SET upload_limit_bytes = EXCLUDED.upload_limit_bytes, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, guildID, limit); err != nil {
		return fmt.Errorf("failed to set upload limit: %w", err)
	}

	s.logger.Info("Upload limit set",
		slog.Int64("guild_id", guildID),
		slog.Int64("limit_bytes", limit),
	)
	return nil
}
