package settings_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/migrate"
	"github.com/cuongbtq/mediaqueue/internal/settings"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupStore(t *testing.T) *settings.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("settings_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrate.Run(connStr))

	db, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return settings.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_SystemChannels(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ch, err := s.SystemChannel(ctx, 1, "dedup")
	require.NoError(t, err)
	assert.Nil(t, ch)

	require.NoError(t, s.SetSystemChannel(ctx, 1, "dedup", 100))
	require.NoError(t, s.SetSystemChannel(ctx, 1, "dedup:results", 200))
	require.NoError(t, s.SetSystemChannel(ctx, 1, "dedup", 101))

	ch, err = s.SystemChannel(ctx, 1, "dedup")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, int64(101), *ch)

	system, err := s.SystemForChannel(ctx, 1, 101)
	require.NoError(t, err)
	assert.Equal(t, "dedup", system)

	system, err = s.SystemForChannel(ctx, 1, 200)
	require.NoError(t, err)
	assert.Empty(t, system, "results channels are not intake channels")

	removed, err := s.RemoveSystemChannel(ctx, 1, "dedup")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveSystemChannel(ctx, 1, "dedup")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_UploadLimit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	limit, err := s.UploadLimit(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, limit)

	require.NoError(t, s.SetUploadLimit(ctx, 7, 50*1024*1024))
	limit, err = s.UploadLimit(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50*1024*1024), limit)

	r := settings.NewResolver(s, 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err := r.UploadLimit(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultUploadLimit, got)
}
