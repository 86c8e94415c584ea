package artifact

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return m
}

func TestAcquire_UniqueDirectories(t *testing.T) {
	m := newManager(t)

	a, err := m.Acquire(domain.CategoryDedup)
	require.NoError(t, err)
	b, err := m.Acquire(domain.CategoryDedup)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.DirExists(t, a)
	assert.Equal(t, filepath.Join(m.Root(), "dedup"), filepath.Dir(a))
}

func TestRelease_Idempotent(t *testing.T) {
	m := newManager(t)

	dir, err := m.Acquire(domain.CategoryBackgroundRemoval)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.png"), []byte("y"), 0o644))

	m.Release(dir)
	assert.NoDirExists(t, dir)

	// second release and a missing directory are both no-ops
	m.Release(dir)
	m.Release(filepath.Join(m.Root(), "missing"))
	m.Release("")
}

func TestRelease_PartiallyRemoved(t *testing.T) {
	m := newManager(t)

	dir, err := m.Acquire(domain.CategoryDedup)
	require.NoError(t, err)
	input := filepath.Join(dir, "input.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output_dedup.mp4"), []byte("y"), 0o644))

	m.Discard(input)
	m.Discard(input)
	m.Release(dir)
	assert.NoDirExists(t, dir)
}

func TestAdopt(t *testing.T) {
	m := newManager(t)

	path, _, err := m.Save(domain.CategoryBackgroundRemoval, ".PNG", strings.NewReader("img"), 0)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))

	dir, err := m.Adopt(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), dir)

	_, err = m.Adopt("/etc/passwd")
	assert.Error(t, err)

	_, err = m.Adopt(filepath.Join(m.Root(), "stray.png"))
	assert.Error(t, err)
}

func TestSave_Limit(t *testing.T) {
	m := newManager(t)

	path, n, err := m.Save(domain.CategoryDedup, ".mp4", bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.FileExists(t, path)

	_, _, err = m.Save(domain.CategoryDedup, ".mp4", bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	entries, err := os.ReadDir(filepath.Join(m.Root(), "dedup"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected upload must not leave a directory behind")
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("/a/b", "/a/b/c.png"))
	assert.False(t, Contains("/a/b", "/a/b"))
	assert.False(t, Contains("/a/b", "/a/bc/d"))
	assert.False(t, Contains("/a/b", "/a"))
}
