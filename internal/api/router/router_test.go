package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/api/dto"
	"github.com/cuongbtq/mediaqueue/internal/api/handler"
	"github.com/cuongbtq/mediaqueue/internal/api/router"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/jobstore"
	"github.com/cuongbtq/mediaqueue/internal/submission"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- fakes ---

type fakeJobs struct {
	jobs       map[int64]*domain.Job
	list       []domain.Job
	lastFilter jobstore.JobFilter
	requeueErr error
	listErr    error
}

func (f *fakeJobs) Get(_ context.Context, id int64) (*domain.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) List(_ context.Context, filter jobstore.JobFilter) ([]domain.Job, error) {
	f.lastFilter = filter
	return f.list, f.listErr
}

func (f *fakeJobs) Requeue(context.Context, int64) error {
	return f.requeueErr
}

type fakeSubmitter struct {
	receipt   submission.Receipt
	err       error
	payload   string
	filename  string
	body      string
	origin    domain.Origin
	positions int
}

func (f *fakeSubmitter) Submit(_ context.Context, _ domain.Category, origin domain.Origin, payload string) (submission.Receipt, error) {
	f.origin = origin
	f.payload = payload
	return f.receipt, f.err
}

func (f *fakeSubmitter) Upload(_ context.Context, _ domain.Category, origin domain.Origin, filename string, _ int64, r io.Reader) (submission.Receipt, error) {
	data, _ := io.ReadAll(r)
	f.origin = origin
	f.filename = filename
	f.body = string(data)
	return f.receipt, f.err
}

func (f *fakeSubmitter) Position(context.Context, domain.Category) (int, error) {
	return f.positions, f.err
}

type fakeStatuses map[int64]string

func (f fakeStatuses) GetStatus(_ context.Context, id int64) (string, bool, error) {
	text, ok := f[id]
	return text, ok, nil
}

type fakeSettings struct {
	systems map[string]int64
	limit   int64
}

func (f *fakeSettings) SetSystemChannel(_ context.Context, _ int64, system string, channelID int64) error {
	f.systems[system] = channelID
	return nil
}

func (f *fakeSettings) RemoveSystemChannel(_ context.Context, _ int64, system string) (bool, error) {
	_, ok := f.systems[system]
	delete(f.systems, system)
	return ok, nil
}

func (f *fakeSettings) SetUploadLimit(_ context.Context, _, limit int64) error {
	f.limit = limit
	return nil
}

type fakeChannels struct {
	synced []int64
}

func (f *fakeChannels) SyncChannels(_ context.Context, _ int64, ids []int64) error {
	f.synced = ids
	return nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

// --- helpers ---

const adminToken = "let-me-in"

type env struct {
	engine    *gin.Engine
	jobs      *fakeJobs
	submitter *fakeSubmitter
	settings  *fakeSettings
	channels  *fakeChannels
}

func newEnv(t *testing.T, opts router.Options) *env {
	t.Helper()
	e := &env{
		jobs:      &fakeJobs{jobs: map[int64]*domain.Job{}},
		submitter: &fakeSubmitter{},
		settings:  &fakeSettings{systems: map[string]int64{}},
		channels:  &fakeChannels{},
	}
	deps := &handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:      e.jobs,
		Submitter: e.submitter,
		Statuses:  fakeStatuses{7: "Downloading from YouTube… **40%**"},
		Settings:  e.settings,
		Channels:  e.channels,

		MaxUploadLimit: 100 << 20,
	}
	e.engine = router.SetupRouter(deps, opts)
	return e
}

func adminOptions(t *testing.T) router.Options {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	return router.Options{AdminTokenHash: string(hash)}
}

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- tests ---

func TestHealth(t *testing.T) {
	e := newEnv(t, router.Options{Health: map[string]router.HealthChecker{
		"postgres": fakeHealth{},
		"redis":    fakeHealth{},
	}})
	rec := e.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newEnv(t, router.Options{Health: map[string]router.HealthChecker{
		"postgres": fakeHealth{err: errors.New("connection refused")},
	}})
	rec = e.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCreateJob(t *testing.T) {
	valid := dto.CreateJobRequest{
		Category:  string(domain.CategoryDownloadVideo),
		URL:       "https://youtu.be/dQw4w9WgXcQ",
		GuildID:   1,
		ChannelID: 2,
		AuthorID:  3,
	}

	tests := []struct {
		name       string
		body       any
		submitErr  error
		wantStatus int
	}{
		{name: "accepted", body: valid, wantStatus: http.StatusAccepted},
		{name: "missing fields", body: map[string]any{"category": "download-video"}, wantStatus: http.StatusBadRequest},
		{name: "file category", body: dto.CreateJobRequest{Category: "bg-removal", URL: "x", GuildID: 1, ChannelID: 2, AuthorID: 3}, wantStatus: http.StatusBadRequest},
		{name: "rejected", body: valid, submitErr: domain.ErrInvalidJob, wantStatus: http.StatusBadRequest},
		{name: "store down", body: valid, submitErr: domain.ErrStoreUnavailable, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, router.Options{})
			e.submitter.receipt = submission.Receipt{JobID: 42, Position: 3}
			e.submitter.err = tt.submitErr

			rec := e.do(http.MethodPost, "/api/v1/jobs", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusAccepted {
				resp := decode[dto.SubmitResponse](t, rec)
				assert.Equal(t, int64(42), resp.JobID)
				assert.Equal(t, "You're #3 in the queue", resp.Message)
				assert.Equal(t, valid.URL, e.submitter.payload)
				assert.Equal(t, int64(2), e.submitter.origin.ChannelID)
			}
		})
	}
}

func TestUploadJob(t *testing.T) {
	e := newEnv(t, router.Options{})
	e.submitter.receipt = submission.Receipt{JobID: 5, Position: 1}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("guild_id", "1"))
	require.NoError(t, mw.WriteField("channel_id", "2"))
	require.NoError(t, mw.WriteField("author_id", "3"))
	require.NoError(t, mw.WriteField("message_id", "99"))
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/bg-removal", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[dto.SubmitResponse](t, rec)
	assert.Equal(t, int64(5), resp.JobID)
	assert.Empty(t, resp.Message)
	assert.Equal(t, "cat.png", e.submitter.filename)
	assert.Equal(t, "png", e.submitter.body)
	require.NotNil(t, e.submitter.origin.MessageID)
	assert.Equal(t, int64(99), *e.submitter.origin.MessageID)

	rec = e.do(http.MethodPost, "/api/v1/uploads/download-audio", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	e := newEnv(t, router.Options{})
	e.jobs.jobs[7] = &domain.Job{
		ID:        7,
		Category:  domain.CategoryDownloadVideo,
		Status:    domain.StatusProcessing,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	rec := e.do(http.MethodGet, "/api/v1/jobs/7", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[dto.JobDTO](t, rec)
	assert.Equal(t, "processing", job.Status)
	assert.Equal(t, "Downloading from YouTube… **40%**", job.LiveStatus)
	assert.Equal(t, "2026-01-02T03:04:05Z", job.CreatedAt)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/jobs/8", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/jobs/abc", nil, "").Code)
}

func TestListJobs(t *testing.T) {
	e := newEnv(t, router.Options{})
	e.jobs.list = []domain.Job{{ID: 30}, {ID: 29}, {ID: 28}}

	rec := e.do(http.MethodGet, "/api/v1/jobs?status=processing&category=dedup&page_size=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dto.ListJobsResponse](t, rec)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, domain.StatusProcessing, e.jobs.lastFilter.Status)
	assert.Equal(t, domain.CategoryDedup, e.jobs.lastFilter.Category)
	require.NotEmpty(t, resp.NextCursor)

	e.jobs.list = nil
	rec = e.do(http.MethodGet, "/api/v1/jobs?cursor="+resp.NextCursor, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(29), e.jobs.lastFilter.Cursor)
	assert.Equal(t, 20, e.jobs.lastFilter.PageSize)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/jobs?status=running", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/jobs?cursor=!!!", nil, "").Code)
}

func TestQueueDepth(t *testing.T) {
	e := newEnv(t, router.Options{})
	e.submitter.positions = 4

	rec := e.do(http.MethodGet, "/api/v1/queues/dedup", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[dto.QueueResponse](t, rec).Pending)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/queues/resize", nil, "").Code)
}

func TestAdminAuth(t *testing.T) {
	path := "/api/v1/admin/jobs/7/requeue"

	disabled := newEnv(t, router.Options{})
	assert.Equal(t, http.StatusForbidden, disabled.do(http.MethodPost, path, nil, adminToken).Code)

	e := newEnv(t, adminOptions(t))
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, path, nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, path, nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, path, nil, adminToken).Code)

	e.jobs.requeueErr = domain.ErrJobNotClaimed
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, path, nil, adminToken).Code)

	e.jobs.requeueErr = domain.ErrJobNotFound
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, path, nil, adminToken).Code)
}

func TestGuildConfiguration(t *testing.T) {
	e := newEnv(t, adminOptions(t))

	rec := e.do(http.MethodPut, "/api/v1/guilds/1/systems/bg-removal:results", dto.SystemChannelRequest{ChannelID: 900}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(900), e.settings.systems["bg-removal:results"])

	rec = e.do(http.MethodPut, "/api/v1/guilds/1/systems/resize", dto.SystemChannelRequest{ChannelID: 900}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/v1/guilds/1/systems/bg-removal:results", nil, adminToken).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/v1/guilds/1/systems/bg-removal:results", nil, adminToken).Code)

	rec = e.do(http.MethodPut, "/api/v1/guilds/1/limits", dto.UploadLimitRequest{UploadLimitBytes: 50 << 20}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(50<<20), e.settings.limit)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/v1/guilds/1/limits", map[string]int{"upload_limit_bytes": 0}, adminToken).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/v1/guilds/1/limits", dto.UploadLimitRequest{UploadLimitBytes: 200 << 20}, adminToken).Code)

	rec = e.do(http.MethodPut, "/api/v1/guilds/1/channels", dto.SyncChannelsRequest{ChannelIDs: []int64{2, 3}}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{2, 3}, e.channels.synced)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPut, "/api/v1/guilds/1/limits", dto.UploadLimitRequest{UploadLimitBytes: 1}, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/v1/guilds/x/limits", dto.UploadLimitRequest{UploadLimitBytes: 1}, adminToken).Code)
}
