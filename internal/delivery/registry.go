package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisRegistry answers whether a channel still exists using the channel sets
// the chat gateway keeps in Redis. A guild with no set is treated as unknown,
// and unknown channels are assumed to exist.
type RedisRegistry struct {
	rdb    *goredis.Client
	logger *slog.Logger
}

// NewRedisRegistry creates a registry backed by rdb.
func NewRedisRegistry(rdb *goredis.Client, logger *slog.Logger) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, logger: logger}
}

// ChannelExists reports whether channelID is a live channel of guildID.
func (r *RedisRegistry) ChannelExists(ctx context.Context, guildID, channelID int64) (bool, error) {
	key := GuildChannelsKey(guildID)

	pipe := r.rdb.Pipeline()
	exists := pipe.Exists(ctx, key)
	member := pipe.SIsMember(ctx, key, strconv.FormatInt(channelID, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("failed to check channel: %w", err)
	}

	if exists.Val() == 0 {
		r.logger.Debug("No channel registry for guild, assuming channel exists",
			slog.Int64("guild_id", guildID),
		)
		return true, nil
	}
	return member.Val(), nil
}

// SyncChannels replaces the channel set of guildID.
func (r *RedisRegistry) SyncChannels(ctx context.Context, guildID int64, channelIDs []int64) error {
	key := GuildChannelsKey(guildID)

	members := make([]interface{}, len(channelIDs))
	for i, id := range channelIDs {
		members[i] = strconv.FormatInt(id, 10)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to sync channels: %w", err)
	}

	r.logger.Info("Channel registry synced",
		slog.Int64("guild_id", guildID),
		slog.Int("channels", len(channelIDs)),
	)
	return nil
}

// StatusMirror keeps the latest status text of each job in Redis so the API
// can show live progress.
type StatusMirror struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewStatusMirror creates a mirror whose entries expire after ttl.
func NewStatusMirror(rdb *goredis.Client, ttl time.Duration) *StatusMirror {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StatusMirror{rdb: rdb, ttl: ttl}
}

// SetStatus stores text as the latest status of jobID.
func (m *StatusMirror) SetStatus(ctx context.Context, jobID int64, text string) error {
	return m.rdb.Set(ctx, JobStatusKey(jobID), text, m.ttl).Err()
}

// GetStatus returns the latest status of jobID, if any.
func (m *StatusMirror) GetStatus(ctx context.Context, jobID int64) (string, bool, error) {
	val, err := m.rdb.Get(ctx, JobStatusKey(jobID)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
