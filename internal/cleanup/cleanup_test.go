package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofitape/api/internal/config"
)

type recordingPurger struct {
	calls int
}

func (p *recordingPurger) Purge(time.Time) { p.calls++ }

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	return path
}

func TestSweepRemovesOnlyStaleEntries(t *testing.T) {
	uploadDir := t.TempDir()
	workDir := t.TempDir()

	stale := writeAged(t, uploadDir, "old.wav", time.Hour)
	fresh := writeAged(t, uploadDir, "new.wav", time.Minute)

	staleWs := filepath.Join(workDir, "job-a1-123")
	require.NoError(t, os.MkdirAll(staleWs, 0o755))
	writeAged(t, staleWs, "temp.wav", time.Hour)
	stamp := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(staleWs, stamp, stamp))

	purger := &recordingPurger{}
	j := NewJanitor(
		config.CleanupConfig{Retention: 30 * time.Minute, Schedule: "@every 10m"},
		config.PathsConfig{UploadDir: uploadDir, WorkDir: workDir},
		purger,
	)
	j.Sweep()

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.NoDirExists(t, staleWs)
	assert.Equal(t, 1, purger.calls)
}

func TestSweepLeavesForeignWorkDirEntries(t *testing.T) {
	// The work dir may be shared with other processes; the sweep may only
	// touch attempt workspaces there.
	workDir := t.TempDir()

	foreignFile := writeAged(t, workDir, "someone-elses.lock", time.Hour)
	foreignDir := filepath.Join(workDir, "other-tool")
	require.NoError(t, os.MkdirAll(foreignDir, 0o755))
	stamp := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(foreignDir, stamp, stamp))

	staleWs := filepath.Join(workDir, "job-b2-456")
	require.NoError(t, os.MkdirAll(staleWs, 0o755))
	require.NoError(t, os.Chtimes(staleWs, stamp, stamp))

	j := NewJanitor(
		config.CleanupConfig{Retention: 30 * time.Minute, Schedule: "@every 10m"},
		config.PathsConfig{UploadDir: t.TempDir(), WorkDir: workDir},
		nil,
	)
	j.Sweep()

	assert.FileExists(t, foreignFile)
	assert.DirExists(t, foreignDir)
	assert.NoDirExists(t, staleWs)
}

func TestSweepToleratesMissingDirs(t *testing.T) {
	j := NewJanitor(
		config.CleanupConfig{Retention: time.Minute, Schedule: "@every 10m"},
		config.PathsConfig{UploadDir: "/nonexistent/a", WorkDir: "/nonexistent/b"},
		nil,
	)
	j.Sweep() // must not panic
}

func TestStartRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(
		config.CleanupConfig{Retention: time.Minute, Schedule: "not a schedule"},
		config.PathsConfig{},
		nil,
	)
	assert.Error(t, j.Start())
}

func TestStartDisabledWithoutRetention(t *testing.T) {
	j := NewJanitor(config.CleanupConfig{}, config.PathsConfig{}, nil)
	assert.NoError(t, j.Start())
}
