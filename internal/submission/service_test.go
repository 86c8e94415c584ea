package submission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuongbtq/mediaqueue/internal/artifact"
	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	payloads   []string
	pending    int
	enqueueErr error
	countErr   error
}

func (s *fakeStore) Enqueue(_ context.Context, _ domain.Category, _ domain.Origin, payload string) (int64, error) {
	if s.enqueueErr != nil {
		return 0, s.enqueueErr
	}
	s.payloads = append(s.payloads, payload)
	s.pending++
	return int64(len(s.payloads)), nil
}

func (s *fakeStore) CountPending(context.Context, domain.Category) (int, error) {
	return s.pending, s.countErr
}

type fixedLimits struct {
	maxInput int64
}

func (l fixedLimits) ResolveLimits(context.Context, domain.Origin, domain.Category) (processor.Limits, error) {
	return processor.Limits{MaxInputBytes: l.maxInput, MaxOutputBytes: l.maxInput}, nil
}

func newService(t *testing.T, store *fakeStore, maxInput int64) (*Service, *artifact.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := artifact.NewManager(t.TempDir(), logger)
	require.NoError(t, err)
	return NewService(store, manager, fixedLimits{maxInput: maxInput}, logger), manager
}

var origin = domain.Origin{GuildID: 1, ChannelID: 2, AuthorID: 3}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name     string
		category domain.Category
		payload  string
		wantErr  error
	}{
		{name: "video url", category: domain.CategoryDownloadVideo, payload: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "short url", category: domain.CategoryDownloadAudio, payload: " https://youtu.be/dQw4w9WgXcQ "},
		{name: "not youtube", category: domain.CategoryDownloadVideo, payload: "https://example.com/video", wantErr: domain.ErrInvalidJob},
		{name: "unknown category", category: "resize", payload: "x", wantErr: domain.ErrInvalidJob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc, _ := newService(t, store, 0)

			receipt, err := svc.Submit(context.Background(), tt.category, origin, tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, store.payloads)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), receipt.JobID)
			assert.Equal(t, 1, receipt.Position)
			assert.Equal(t, strings.TrimSpace(tt.payload), store.payloads[0])
		})
	}
}

func TestSubmit_PositionIncludesNewJob(t *testing.T) {
	store := &fakeStore{pending: 2}
	svc, _ := newService(t, store, 0)

	receipt, err := svc.Submit(context.Background(), domain.CategoryDownloadAudio, origin, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Position)
	assert.Equal(t, "You're #3 in the queue", receipt.QueueMessage())
}

func TestSubmit_PositionFailureStillAccepts(t *testing.T) {
	store := &fakeStore{countErr: domain.ErrStoreUnavailable}
	svc, _ := newService(t, store, 0)

	receipt, err := svc.Submit(context.Background(), domain.CategoryDownloadAudio, origin, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, 0, receipt.Position)
	assert.Empty(t, receipt.QueueMessage())
}

func TestUpload(t *testing.T) {
	store := &fakeStore{}
	svc, manager := newService(t, store, 1024)

	receipt, err := svc.Upload(context.Background(), domain.CategoryBackgroundRemoval, origin, "Cat.PNG", 4, strings.NewReader("meow"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.JobID)

	path := store.payloads[0]
	assert.True(t, artifact.Contains(manager.Root(), path))
	assert.Equal(t, "input.png", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(data))
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		category domain.Category
		filename string
		size     int64
		body     string
		wantErr  error
		wantMsg  string
	}{
		{name: "url category", category: domain.CategoryDownloadVideo, filename: "a.mp4", body: "x", wantErr: domain.ErrInvalidJob},
		{name: "bad extension", category: domain.CategoryBackgroundRemoval, filename: "a.txt", body: "x", wantErr: domain.ErrInvalidInput},
		{name: "declared too large", category: domain.CategoryBackgroundRemoval, filename: "a.png", size: 2048, body: "x", wantErr: domain.ErrInvalidInput, wantMsg: "Image must be under"},
		{name: "streamed too large", category: domain.CategoryDedup, filename: "a.mp4", body: strings.Repeat("v", 2000), wantErr: domain.ErrInvalidInput, wantMsg: "Video must be under"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc, manager := newService(t, store, 1024)

			_, err := svc.Upload(context.Background(), tt.category, origin, tt.filename, tt.size, strings.NewReader(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Empty(t, store.payloads)
			assertScratchEmpty(t, manager.Root())
		})
	}
}

func TestUpload_EnqueueFailureRemovesFile(t *testing.T) {
	store := &fakeStore{enqueueErr: domain.ErrStoreUnavailable}
	svc, manager := newService(t, store, 1024)

	_, err := svc.Upload(context.Background(), domain.CategoryBackgroundRemoval, origin, "a.png", 4, strings.NewReader("meow"))
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assertScratchEmpty(t, manager.Root())
}

// assertScratchEmpty checks that no input file survived under root.
func assertScratchEmpty(t *testing.T, root string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			t.Errorf("unexpected file left behind: %s", path)
		}
		return nil
	})
	require.NoError(t, err)
}
