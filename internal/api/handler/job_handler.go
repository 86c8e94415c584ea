package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/api/dto"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/jobstore"
	"github.com/cuongbtq/mediaqueue/internal/submission"
	"github.com/gin-gonic/gin"
)

// CreateJob handles POST /api/v1/jobs
// Queues a URL download job
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	category := domain.Category(req.Category)
	if category.TakesUpload() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file categories are submitted through /api/v1/uploads/" + req.Category,
		})
		return
	}

	origin := domain.Origin{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		AuthorID:  req.AuthorID,
		MessageID: req.MessageID,
	}

	receipt, err := h.submitter.Submit(c.Request.Context(), category, origin, req.URL)
	if err != nil {
		writeError(c, h.logger, err, "Failed to create job")
		return
	}

	c.JSON(http.StatusAccepted, submitResponse(receipt))
}

// UploadJob handles POST /api/v1/uploads/:category
// Stores a multipart "file" and queues it
func (h *JobHandler) UploadJob(c *gin.Context) {
	category := domain.Category(c.Param("category"))
	if !category.TakesUpload() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "category does not take uploads",
		})
		return
	}

	var req dto.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "guild_id, channel_id and author_id are required",
		})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, h.logger, err, "Failed to read upload")
		return
	}
	defer f.Close()

	origin := domain.Origin{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		AuthorID:  req.AuthorID,
		MessageID: req.MessageID,
	}

	receipt, err := h.submitter.Upload(c.Request.Context(), category, origin, fh.Filename, fh.Size, f)
	if err != nil {
		writeError(c, h.logger, err, "Failed to create job")
		return
	}

	c.JSON(http.StatusAccepted, submitResponse(receipt))
}

func submitResponse(r submission.Receipt) dto.SubmitResponse {
	return dto.SubmitResponse{
		JobID:    r.JobID,
		Position: r.Position,
		Message:  r.QueueMessage(),
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "Failed to get job")
		return
	}

	out := toJobDTO(job)
	if h.statuses != nil && !job.Status.Terminal() {
		text, found, err := h.statuses.GetStatus(c.Request.Context(), id)
		if err != nil {
			h.logger.Debug("Failed to read live status",
				slog.Int64("job_id", id),
				slog.Any("error", err),
			)
		}
		if found {
			out.LiveStatus = text
		}
	}

	c.JSON(http.StatusOK, out)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and id cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	if req.Category != "" && !domain.Category(req.Category).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
		return
	}
	if req.Status != "" && !domain.Status(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), jobstore.JobFilter{
		Category: domain.Category(req.Category),
		Status:   domain.Status(req.Status),
		GuildID:  req.GuildID,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		writeError(c, h.logger, err, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}
	if hasMore {
		resp.NextCursor = EncodeJobCursor(jobs[len(jobs)-1].ID)
	}

	c.JSON(http.StatusOK, resp)
}

// QueueDepth handles GET /api/v1/queues/:category
func (h *JobHandler) QueueDepth(c *gin.Context) {
	category := domain.Category(c.Param("category"))
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
		return
	}

	n, err := h.submitter.Position(c.Request.Context(), category)
	if err != nil {
		writeError(c, h.logger, err, "Failed to count pending jobs")
		return
	}

	c.JSON(http.StatusOK, dto.QueueResponse{Category: string(category), Pending: n})
}

// RequeueJob handles POST /api/v1/admin/jobs/:job_id/requeue
// Puts a job stuck in processing back to pending
func (h *JobHandler) RequeueJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}

	if err := h.jobs.Requeue(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "Failed to requeue job")
		return
	}

	h.logger.Warn("Job requeued by operator", slog.Int64("job_id", id))
	c.JSON(http.StatusOK, gin.H{
		"job_id": id,
		"status": domain.StatusPending,
	})
}

func jobIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func toJobDTO(job *domain.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:        job.ID,
		Category:     string(job.Category),
		Status:       string(job.Status),
		Payload:      job.Payload,
		GuildID:      job.GuildID,
		ChannelID:    job.ChannelID,
		AuthorID:     job.AuthorID,
		MessageID:    job.MessageID,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		ClaimedAt:    formatTime(job.ClaimedAt),
		FinishedAt:   formatTime(job.FinishedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
