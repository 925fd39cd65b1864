package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/paper-harvester/internal/acquire"
	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
	"github.com/veranemoloko/paper-harvester/internal/repository"
	"github.com/veranemoloko/paper-harvester/internal/storage"
)

type fakeCollector struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeCollector) Collect(ctx context.Context, sel domain.Selector, maxResults int) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > maxResults {
		return f.candidates[:maxResults], nil
	}
	return f.candidates, nil
}

// fakeAcquirer scripts per-document behavior and counts attempts.
type fakeAcquirer struct {
	dir    string
	behave map[string]func(ctx context.Context) (*acquire.Artifact, error)
	calls  map[string]int
}

func newFakeAcquirer(dir string) *fakeAcquirer {
	return &fakeAcquirer{
		dir:    dir,
		behave: make(map[string]func(ctx context.Context) (*acquire.Artifact, error)),
		calls:  make(map[string]int),
	}
}

func (f *fakeAcquirer) succeeds(docID string) {
	f.behave[docID] = func(context.Context) (*acquire.Artifact, error) {
		path := filepath.Join(f.dir, docID+"-raw.pdf")
		if err := os.WriteFile(path, []byte("%PDF-1.5 "+docID), 0o644); err != nil {
			return nil, err
		}
		info, _ := os.Stat(path)
		return &acquire.Artifact{Path: path, Size: info.Size()}, nil
	}
}

func (f *fakeAcquirer) fails(docID string, err error) {
	f.behave[docID] = func(context.Context) (*acquire.Artifact, error) { return nil, err }
}

func (f *fakeAcquirer) Acquire(ctx context.Context, docID string) (*acquire.Artifact, error) {
	f.calls[docID]++
	fn, ok := f.behave[docID]
	if !ok {
		return nil, errors.New("unscripted document " + docID)
	}
	return fn(ctx)
}

type testEnv struct {
	orch      *Orchestrator
	papers    *repository.PaperStore
	tasks     *repository.TaskStore
	artifacts *storage.ArtifactStore
	acquirer  *fakeAcquirer
}

func newTestEnv(t *testing.T, collector *fakeCollector) *testEnv {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	papers := repository.NewPaperStore(db)
	tasks := repository.NewTaskStore(db)
	artifacts := storage.NewArtifactStore(dir)
	acquirer := newFakeAcquirer(dir)

	retrier := acquire.NewRetrier(acquire.RetryPolicy{
		MaxAttempts:    2,
		RateLimitUnit:  time.Millisecond,
		TransientDelay: time.Millisecond,
		UnknownDelay:   time.Millisecond,
	}, acquire.NewClassifier(), logger)

	orch := New(Deps{
		Papers:    papers,
		Tasks:     tasks,
		Artifacts: artifacts,
		Collector: collector,
		Acquirer:  acquirer,
		Retrier:   retrier,
		Pacing:    0,
		Logger:    logger,
	})
	return &testEnv{orch: orch, papers: papers, tasks: tasks, artifacts: artifacts, acquirer: acquirer}
}

func TestPrepare_ValidatesSelector(t *testing.T) {
	env := newTestEnv(t, &fakeCollector{})

	_, err := env.orch.Prepare(context.Background(), domain.Selector{}, 10)
	require.ErrorIs(t, err, errpkg.ErrBadSelector)
}

func TestPrepare_ResumesInterruptedTask(t *testing.T) {
	env := newTestEnv(t, &fakeCollector{})
	ctx := context.Background()

	first, err := env.orch.Prepare(ctx, domain.Selector{Query: "Deep Learning"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.tasks.Complete(ctx, first.ID, domain.TaskStatusInterrupted))

	// Same logical selector, different spelling.
	second, err := env.orch.Prepare(ctx, domain.Selector{Query: "  deep   learning "}, 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.TaskStatusRunning, second.Status)
}

func TestPrepare_CompletedTaskStartsFresh(t *testing.T) {
	env := newTestEnv(t, &fakeCollector{})
	ctx := context.Background()

	first, err := env.orch.Prepare(ctx, domain.Selector{Query: "radar"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.tasks.Complete(ctx, first.ID, domain.TaskStatusCompleted))

	second, err := env.orch.Prepare(ctx, domain.Selector{Query: "radar"}, 10)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExecute_MixedBatch(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "100", Title: "Already Here"},
		{DocID: "200", Title: "Fresh Download"},
		{DocID: "300", Title: "Always Breaks"},
	}}
	env := newTestEnv(t, collector)
	ctx := context.Background()

	// 100 was downloaded by an earlier batch.
	require.NoError(t, env.papers.Upsert(ctx, &domain.Paper{DocID: "100", Title: "Already Here"}))
	require.NoError(t, env.papers.MarkDownloaded(ctx, "100", "/lib/100.pdf", 10))

	env.acquirer.succeeds("200")
	env.acquirer.fails("300", errors.New("download never started"))

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "mixed"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 3, got.TotalFound)
	assert.Equal(t, 1, got.DownloadedCount)
	assert.Equal(t, 1, got.SkippedCount, "already-downloaded paper counts as a skip")
	assert.Equal(t, 1, got.FailedCount)

	// The already-downloaded paper was never re-acquired.
	assert.Zero(t, env.acquirer.calls["100"])
	assert.Equal(t, 1, env.acquirer.calls["200"])
	assert.Equal(t, 2, env.acquirer.calls["300"], "generic failures retry to the cap")

	p, err := env.papers.Get(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusDownloaded, p.Status)
	require.NotNil(t, p.FilePath)
	assert.Equal(t, env.artifacts.TargetPath("200", "Fresh Download"), *p.FilePath)
	_, statErr := os.Stat(*p.FilePath)
	assert.NoError(t, statErr, "artifact renamed into place")

	p, err = env.papers.Get(ctx, "300")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusFailed, p.Status)
	require.NotNil(t, p.ErrorMessage)
}

func TestExecute_PermanentDenialSkipsWithoutRetry(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "400", Title: "Locked Paper"},
	}}
	env := newTestEnv(t, collector)
	ctx := context.Background()

	env.acquirer.fails("400", &acquire.DeniedError{DocID: "400", Reason: "outside of your subscription"})

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "locked"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	assert.Equal(t, 1, env.acquirer.calls["400"], "denial must not be retried")

	p, err := env.papers.Get(ctx, "400")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusSkipped, p.Status)
	require.NotNil(t, p.ErrorMessage)
	assert.Contains(t, *p.ErrorMessage, "outside of your subscription")

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SkippedCount)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
}

func TestExecute_NoResults(t *testing.T) {
	env := newTestEnv(t, &fakeCollector{candidates: nil})
	ctx := context.Background()

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "nothing here"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusNoResults, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestExecute_CollectorError(t *testing.T) {
	env := newTestEnv(t, &fakeCollector{err: errors.New("portal unreachable")})
	ctx := context.Background()

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "whatever"}, 10)
	require.NoError(t, err)
	require.Error(t, env.orch.Execute(ctx, task))

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, got.Status)
}

func TestExecute_DeduplicatesCandidates(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "500", Title: "Repeated"},
		{DocID: "500", Title: "Repeated"},
	}}
	env := newTestEnv(t, collector)
	ctx := context.Background()
	env.acquirer.succeeds("500")

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "dup"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	assert.Equal(t, 1, env.acquirer.calls["500"])

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadedCount)
}

func TestExecute_CancellationInterruptsCleanly(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "1", Title: "one"},
		{DocID: "2", Title: "two"},
		{DocID: "3", Title: "three"},
		{DocID: "4", Title: "four"},
		{DocID: "5", Title: "five"},
	}}
	env := newTestEnv(t, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.acquirer.succeeds("1")
	env.acquirer.succeeds("2")
	env.acquirer.behave["3"] = func(ctx context.Context) (*acquire.Artifact, error) {
		cancel()
		return nil, ctx.Err()
	}

	task, err := env.orch.Prepare(context.Background(), domain.Selector{Query: "cancel me"}, 10)
	require.NoError(t, err)

	err = env.orch.Execute(ctx, task)
	require.ErrorIs(t, err, context.Canceled)

	got, err := env.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInterrupted, got.Status)
	assert.Equal(t, 2, got.DownloadedCount)

	// Items before the cancellation are terminal, the in-flight one is back
	// to pending, the rest were never attempted.
	for _, tc := range []struct {
		docID string
		want  domain.PaperStatus
	}{
		{"1", domain.PaperStatusDownloaded},
		{"2", domain.PaperStatusDownloaded},
		{"3", domain.PaperStatusPending},
	} {
		p, err := env.papers.Get(context.Background(), tc.docID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, p.Status, "doc %s", tc.docID)
	}
	assert.Zero(t, env.acquirer.calls["4"])
	assert.Zero(t, env.acquirer.calls["5"])
	_, err = env.papers.Get(context.Background(), "4")
	require.ErrorIs(t, err, errpkg.ErrPaperNotFound, "unattempted candidates are not seeded after interrupt")
}

func TestExecute_ExistingArtifactShortCircuits(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "600", Title: "On Disk Already"},
	}}
	env := newTestEnv(t, collector)
	ctx := context.Background()

	path := env.artifacts.TargetPath("600", "On Disk Already")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.5 recovered"), 0o644))

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "on disk"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	assert.Zero(t, env.acquirer.calls["600"])

	p, err := env.papers.Get(ctx, "600")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusDownloaded, p.Status)
	require.NotNil(t, p.FilePath)
	assert.Equal(t, path, *p.FilePath)

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SkippedCount, "recovered artifact counts as a skip")
}

func TestExecute_ResumeSkipsFinishedWork(t *testing.T) {
	collector := &fakeCollector{candidates: []domain.Candidate{
		{DocID: "1", Title: "one"},
		{DocID: "2", Title: "two"},
	}}
	env := newTestEnv(t, collector)
	ctx := context.Background()

	env.acquirer.succeeds("1")
	env.acquirer.succeeds("2")

	task, err := env.orch.Prepare(ctx, domain.Selector{Query: "resume"}, 10)
	require.NoError(t, err)
	require.NoError(t, env.orch.Execute(ctx, task))

	// Force the task back into a resumable state and run it again.
	require.NoError(t, env.tasks.Complete(ctx, task.ID, domain.TaskStatusInterrupted))
	resumed, err := env.orch.Prepare(ctx, domain.Selector{Query: "resume"}, 10)
	require.NoError(t, err)
	require.Equal(t, task.ID, resumed.ID)
	require.NoError(t, env.orch.Execute(ctx, resumed))

	assert.Equal(t, 1, env.acquirer.calls["1"], "finished papers are not re-acquired on resume")
	assert.Equal(t, 1, env.acquirer.calls["2"])

	got, err := env.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	// Counters recomputed at resume show the two earlier downloads; the
	// resumed run then counts both as skips.
	assert.Equal(t, 2, got.DownloadedCount)
	assert.Equal(t, 2, got.SkippedCount)
}
