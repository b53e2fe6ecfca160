package locking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/errors"
)

func TestLockPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("out", "rec.wav.birda.lock"), LockPath("/data/rec.wav", "out"))
	assert.Equal(t, filepath.Join("out", "unknown.birda.lock"), LockPath("", "out"))
}

func TestAcquireWritesLockInfo(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "out")
	lock, err := Acquire("/data/rec.wav", dir, "run-1")
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)

	var info LockInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "/data/rec.wav", info.InputPath)
	assert.Equal(t, "run-1", info.RunID)
	assert.WithinDuration(t, time.Now(), info.StartedAt, time.Minute)
}

func TestSecondAcquireFailsUntilReleased(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Acquire("a.wav", dir, "")
	require.NoError(t, err)
	assert.True(t, IsLocked("a.wav", dir))

	_, err = Acquire("a.wav", dir, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileLocked))
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	require.NoError(t, first.Release())
	assert.False(t, IsLocked("a.wav", dir))

	second, err := Acquire("a.wav", dir, "")
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock, err := Acquire("b.flac", dir, "")
	require.NoError(t, err)

	require.NoError(t, lock.Release())

	// a new owner takes the lock; a repeated release must not remove it
	other, err := Acquire("b.flac", dir, "")
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.True(t, IsLocked("b.flac", dir))
	require.NoError(t, other.Release())

	var nilLock *FileLock
	assert.NoError(t, nilLock.Release())
}

func TestAcquireNonConflictFailure(t *testing.T) {
	t.Parallel()

	// output dir path is an existing regular file
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := Acquire("c.wav", blocker, "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFileLocked))
	assert.Equal(t, errors.CodeLockError, errors.Code(err))
}

func TestStaleDetectionAndRemoval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.False(t, IsStale("d.wav", dir, time.Minute), "missing lock is never stale")

	lockPath := LockPath("d.wav", dir)
	require.NoError(t, os.WriteFile(lockPath, []byte("{}"), 0o600))

	assert.False(t, IsStale("d.wav", dir, time.Hour))
	removed, err := RemoveStale("d.wav", dir, time.Hour)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, IsLocked("d.wav", dir))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	assert.True(t, IsStale("d.wav", dir, time.Hour))
	removed, err = RemoveStale("d.wav", dir, time.Hour)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, IsLocked("d.wav", dir))
}

// Not parallel: inspects the process-wide registry.
func TestReleaseAll(t *testing.T) {
	dir := t.TempDir()
	before := ActiveCount()

	for _, name := range []string{"x.wav", "y.wav", "z.wav"} {
		_, err := Acquire(name, dir, "")
		require.NoError(t, err)
	}
	assert.Equal(t, before+3, ActiveCount())

	assert.Equal(t, before+3, ReleaseAll())
	assert.Equal(t, 0, ActiveCount())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
