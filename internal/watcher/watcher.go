// Package watcher detects artifacts materializing in a download directory.
//
// The browser writes downloads through partial-marker files (.crdownload and
// friends) and renames them into place when finished, so the watcher polls:
// a result is accepted only once no partial markers remain, it was not part
// of the pre-attempt snapshot, and its mtime is at or after the attempt
// start (with slack for clock skew).
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTimeout is returned when no qualifying artifact appears in time.
var ErrTimeout = errors.New("timed out waiting for artifact")

// Watcher polls a directory for a newly materialized, stable artifact.
type Watcher struct {
	PollInterval time.Duration
	// Slack tolerates files whose mtime is slightly before the attempt start.
	Slack       time.Duration
	PartialExts []string
	FinalExt    string
	Logger      *slog.Logger
}

// New returns a watcher with the defaults used for browser PDF downloads.
func New(logger *slog.Logger) *Watcher {
	return &Watcher{
		PollInterval: 500 * time.Millisecond,
		Slack:        5 * time.Second,
		PartialExts:  []string{".crdownload", ".tmp", ".part"},
		FinalExt:     ".pdf",
		Logger:       logger,
	}
}

// Snapshot returns the names of the files currently present in dir, for use
// as the exclusion set of a subsequent Await.
func Snapshot(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read download dir: %w", err)
	}

	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}

// Await blocks until a new final-form artifact appears in dir or the timeout
// elapses. If several qualify, the most recently modified wins. While any
// partial-marker file exists the watcher keeps waiting even if a qualifying
// final file is already present, to avoid racing a rename in progress.
// Cancellation of ctx is surfaced as ctx's error.
func (w *Watcher) Await(ctx context.Context, dir string, startedAfter time.Time, timeout time.Duration, exclude map[string]struct{}) (string, error) {
	deadline := time.Now().Add(timeout)
	cutoff := startedAfter.Add(-w.Slack)

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		if path, ok := w.scan(dir, cutoff, exclude); ok {
			return path, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("watch cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (w *Watcher) scan(dir string, cutoff time.Time, exclude map[string]struct{}) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.Logger.Warn("failed to list download dir", "dir", dir, "error", err)
		return "", false
	}

	var (
		best      string
		bestMtime time.Time
		partials  int
	)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))

		if w.isPartial(ext) {
			partials++
			continue
		}

		if ext != w.FinalExt {
			continue
		}
		if _, known := exclude[name]; known {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if info.ModTime().After(bestMtime) {
			best = filepath.Join(dir, name)
			bestMtime = info.ModTime()
		}
	}

	if partials > 0 {
		w.Logger.Debug("download in progress", "dir", dir, "partial_files", partials)
		return "", false
	}
	return best, best != ""
}

func (w *Watcher) isPartial(ext string) bool {
	for _, p := range w.PartialExts {
		if ext == p {
			return true
		}
	}
	return false
}
