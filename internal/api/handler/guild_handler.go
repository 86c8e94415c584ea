package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/api/dto"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/gin-gonic/gin"
)

// validSystem accepts "<category>" and "<category>:results".
func validSystem(system string) bool {
	return domain.Category(strings.TrimSuffix(system, ":results")).Valid()
}

func guildIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("guild_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guild_id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// SetSystemChannel handles PUT /api/v1/guilds/:guild_id/systems/:system
func (h *GuildHandler) SetSystemChannel(c *gin.Context) {
	guildID, ok := guildIDParam(c)
	if !ok {
		return
	}
	system := c.Param("system")
	if !validSystem(system) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown system"})
		return
	}

	var req dto.SystemChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id is required"})
		return
	}

	if err := h.settings.SetSystemChannel(c.Request.Context(), guildID, system, req.ChannelID); err != nil {
		writeError(c, h.logger, err, "Failed to set system channel")
		return
	}

	h.logger.Info("System channel set",
		slog.Int64("guild_id", guildID),
		slog.String("system", system),
		slog.Int64("channel_id", req.ChannelID),
	)
	c.JSON(http.StatusOK, gin.H{
		"guild_id":   guildID,
		"system":     system,
		"channel_id": req.ChannelID,
	})
}

// RemoveSystemChannel handles DELETE /api/v1/guilds/:guild_id/systems/:system
func (h *GuildHandler) RemoveSystemChannel(c *gin.Context) {
	guildID, ok := guildIDParam(c)
	if !ok {
		return
	}
	system := c.Param("system")
	if !validSystem(system) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown system"})
		return
	}

	removed, err := h.settings.RemoveSystemChannel(c.Request.Context(), guildID, system)
	if err != nil {
		writeError(c, h.logger, err, "Failed to remove system channel")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "System channel not set"})
		return
	}

	c.Status(http.StatusNoContent)
}

// SetUploadLimit handles PUT /api/v1/guilds/:guild_id/limits
func (h *GuildHandler) SetUploadLimit(c *gin.Context) {
	guildID, ok := guildIDParam(c)
	if !ok {
		return
	}

	var req dto.UploadLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_limit_bytes must be positive"})
		return
	}

	if h.maxUploadLimit > 0 && req.UploadLimitBytes > h.maxUploadLimit {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("upload_limit_bytes must not exceed %d", h.maxUploadLimit),
		})
		return
	}

	if err := h.settings.SetUploadLimit(c.Request.Context(), guildID, req.UploadLimitBytes); err != nil {
		writeError(c, h.logger, err, "Failed to set upload limit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guild_id":           guildID,
		"upload_limit_bytes": req.UploadLimitBytes,
	})
}

// SyncChannels handles PUT /api/v1/guilds/:guild_id/channels
// The chat gateway pushes the full channel list of a guild
func (h *GuildHandler) SyncChannels(c *gin.Context) {
	guildID, ok := guildIDParam(c)
	if !ok {
		return
	}

	var req dto.SyncChannelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.channels.SyncChannels(c.Request.Context(), guildID, req.ChannelIDs); err != nil {
		writeError(c, h.logger, err, "Failed to sync channels")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guild_id": guildID,
		"channels": len(req.ChannelIDs),
	})
}
