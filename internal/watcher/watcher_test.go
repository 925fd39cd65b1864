package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatcher() *Watcher {
	w := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.PollInterval = 10 * time.Millisecond
	return w
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.5 test"), 0o644))
	return path
}

func TestAwait_NewFileIsFound(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher()
	started := time.Now()

	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "paper.pdf"), []byte("%PDF-1.5 test"), 0o644)
	}()

	path, err := w.Await(context.Background(), dir, started, 2*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "paper.pdf"), path)
}

func TestAwait_TimesOutWhenNothingAppears(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher()

	_, err := w.Await(context.Background(), dir, time.Now(), 50*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwait_ExcludesSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.pdf")

	before, err := Snapshot(dir)
	require.NoError(t, err)
	require.Contains(t, before, "old.pdf")

	w := testWatcher()
	// old.pdf has a fresh mtime, but it was present before the attempt.
	_, err = w.Await(context.Background(), dir, time.Now().Add(-time.Minute), 50*time.Millisecond, before)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwait_WaitsWhilePartialExists(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher()
	started := time.Now()

	writeFile(t, dir, "paper.pdf")
	partial := writeFile(t, dir, "paper.pdf.crdownload")

	go func() {
		time.Sleep(60 * time.Millisecond)
		os.Remove(partial)
	}()

	begun := time.Now()
	path, err := w.Await(context.Background(), dir, started, 2*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "paper.pdf"), path)
	// It must not have accepted the file while the partial was still there.
	assert.GreaterOrEqual(t, time.Since(begun), 50*time.Millisecond)
}

func TestAwait_IgnoresNonFinalExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt")

	w := testWatcher()
	_, err := w.Await(context.Background(), dir, time.Now().Add(-time.Minute), 50*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwait_NewestWins(t *testing.T) {
	dir := t.TempDir()
	older := writeFile(t, dir, "first.pdf")
	newer := writeFile(t, dir, "second.pdf")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past.Add(time.Minute), past.Add(time.Minute)))
	require.NoError(t, os.Chtimes(newer, past.Add(2*time.Minute), past.Add(2*time.Minute)))

	w := testWatcher()
	path, err := w.Await(context.Background(), dir, past, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}

func TestAwait_RejectsFilesOlderThanSlack(t *testing.T) {
	dir := t.TempDir()
	stale := writeFile(t, dir, "stale.pdf")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	w := testWatcher()
	_, err := w.Await(context.Background(), dir, time.Now(), 50*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwait_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := w.Await(ctx, dir, time.Now(), 10*time.Second, nil)
	require.ErrorIs(t, err, context.Canceled)
}
