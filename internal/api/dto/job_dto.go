package dto

// CreateJobRequest submits a URL job.
type CreateJobRequest struct {
	Category  string `json:"category" binding:"required"`
	URL       string `json:"url" binding:"required"`
	GuildID   int64  `json:"guild_id" binding:"required"`
	ChannelID int64  `json:"channel_id" binding:"required"`
	AuthorID  int64  `json:"author_id" binding:"required"`
	MessageID *int64 `json:"message_id"`
}

// UploadRequest carries the origin of a multipart upload.
type UploadRequest struct {
	GuildID   int64  `form:"guild_id" binding:"required"`
	ChannelID int64  `form:"channel_id" binding:"required"`
	AuthorID  int64  `form:"author_id" binding:"required"`
	MessageID *int64 `form:"message_id"`
}

type SubmitResponse struct {
	JobID    int64  `json:"job_id"`
	Position int    `json:"position"`
	Message  string `json:"message,omitempty"`
}

type ListJobsRequest struct {
	Category string `form:"category"`
	Status   string `form:"status"`
	GuildID  int64  `form:"guild_id"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        int64   `json:"job_id"`
	Category     string  `json:"category"`
	Status       string  `json:"status"`
	Payload      string  `json:"payload"`
	GuildID      int64   `json:"guild_id"`
	ChannelID    int64   `json:"channel_id"`
	AuthorID     int64   `json:"author_id"`
	MessageID    *int64  `json:"message_id,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	LiveStatus   string  `json:"live_status,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ClaimedAt    *string `json:"claimed_at,omitempty"`
	FinishedAt   *string `json:"finished_at,omitempty"`
}

type QueueResponse struct {
	Category string `json:"category"`
	Pending  int    `json:"pending"`
}

// SystemChannelRequest binds a channel to a guild system.
type SystemChannelRequest struct {
	ChannelID int64 `json:"channel_id" binding:"required"`
}

type UploadLimitRequest struct {
	UploadLimitBytes int64 `json:"upload_limit_bytes" binding:"required,gt=0"`
}

// SyncChannelsRequest replaces the known channels of a guild.
type SyncChannelsRequest struct {
	ChannelIDs []int64 `json:"channel_ids"`
}
