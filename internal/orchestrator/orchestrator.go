// Package orchestrator drives one batch end to end: candidate collection,
// per-paper acquisition with retries, durable state transitions and counter
// upkeep.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veranemoloko/paper-harvester/internal/acquire"
	"github.com/veranemoloko/paper-harvester/internal/domain"
	"github.com/veranemoloko/paper-harvester/internal/metrics"
	"github.com/veranemoloko/paper-harvester/internal/repository"
	"github.com/veranemoloko/paper-harvester/internal/selector"
	"github.com/veranemoloko/paper-harvester/internal/source"
	"github.com/veranemoloko/paper-harvester/internal/storage"
)

// Acquirer produces an artifact for one document. *acquire.Engine is the
// production implementation.
type Acquirer interface {
	Acquire(ctx context.Context, docID string) (*acquire.Artifact, error)
}

// Orchestrator owns the batch run loop. One batch runs at a time per
// orchestrator; the service layer serializes access.
type Orchestrator struct {
	papers    *repository.PaperStore
	tasks     *repository.TaskStore
	artifacts *storage.ArtifactStore
	collector source.Collector
	acquirer  Acquirer
	retrier   *acquire.Retrier
	notifier  source.Notifier
	pacing    time.Duration
	logger    *slog.Logger
}

// Deps bundles the orchestrator's collaborators. Notifier may be nil.
type Deps struct {
	Papers    *repository.PaperStore
	Tasks     *repository.TaskStore
	Artifacts *storage.ArtifactStore
	Collector source.Collector
	Acquirer  Acquirer
	Retrier   *acquire.Retrier
	Notifier  source.Notifier
	Pacing    time.Duration
	Logger    *slog.Logger
}

// New builds an orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		papers:    d.Papers,
		tasks:     d.Tasks,
		artifacts: d.Artifacts,
		collector: d.Collector,
		acquirer:  d.Acquirer,
		retrier:   d.Retrier,
		notifier:  d.Notifier,
		pacing:    d.Pacing,
		logger:    d.Logger,
	}
}

// Prepare resolves a selector to a task: an existing resumable task for the
// same normalized selector is reclaimed (with its counters recomputed from
// the papers table), otherwise a fresh running task is created.
func (o *Orchestrator) Prepare(ctx context.Context, sel domain.Selector, maxResults int) (*domain.Task, error) {
	if err := selector.Validate(sel); err != nil {
		return nil, err
	}
	normalized := selector.Normalize(sel)

	existing, err := o.tasks.FindResumable(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := o.tasks.RecomputeCounters(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := o.tasks.MarkRunning(ctx, existing.ID); err != nil {
			return nil, err
		}
		task, err := o.tasks.Get(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		o.logger.Info("resuming task",
			"task_id", task.ID,
			"downloaded", task.DownloadedCount,
			"skipped", task.SkippedCount,
			"failed", task.FailedCount,
		)
		return task, nil
	}

	return o.tasks.Create(ctx, sel, normalized, maxResults)
}

// Execute runs a prepared task to a terminal status. Cancellation of ctx
// interrupts the batch between papers (and aborts the in-flight paper,
// resetting it to pending); the terminal status is always written, on a
// context detached from the cancelled one.
func (o *Orchestrator) Execute(ctx context.Context, task *domain.Task) error {
	runID := uuid.NewString()
	log := o.logger.With("task_id", task.ID, "run_id", runID)
	metrics.BatchesStarted.Inc()

	log.Info("collecting candidates", "max_results", task.MaxResults)
	candidates, err := o.collector.Collect(ctx, task.Selector(), task.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, task, domain.TaskStatusInterrupted, log)
		}
		log.Error("candidate collection failed", "error", err)
		if ferr := o.finish(ctx, task, domain.TaskStatusError, log); ferr != nil {
			return ferr
		}
		return fmt.Errorf("collect candidates: %w", err)
	}

	total := len(candidates)
	if err := o.tasks.UpdateCounters(ctx, task.ID, domain.CounterUpdate{TotalFound: &total}); err != nil {
		return o.storeFailure(ctx, task, log, err)
	}
	if total == 0 {
		log.Info("no results for selector")
		return o.finish(ctx, task, domain.TaskStatusNoResults, log)
	}
	log.Info("candidates collected", "total", total)

	// A crash or cancellation must never strand a paper in_progress.
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		if n, err := o.papers.ResetInProgress(cleanup, &task.ID); err != nil {
			log.Error("failed to reset in-progress papers", "error", err)
		} else if n > 0 {
			log.Warn("reset stranded in-progress papers", "count", n)
		}
	}()

	downloaded := task.DownloadedCount
	skipped := task.SkippedCount
	failed := task.FailedCount
	seen := make(map[string]struct{}, total)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			return o.finish(ctx, task, domain.TaskStatusInterrupted, log)
		}
		if _, dup := seen[cand.DocID]; dup {
			continue
		}
		seen[cand.DocID] = struct{}{}

		outcome, attempted, err := o.processCandidate(ctx, task, cand, log)
		if err != nil {
			if ctx.Err() != nil {
				if uerr := o.updateCounters(ctx, task.ID, downloaded, skipped, failed); uerr != nil {
					log.Error("counter update failed during interrupt", "error", uerr)
				}
				return o.finish(ctx, task, domain.TaskStatusInterrupted, log)
			}
			return o.storeFailure(ctx, task, log, err)
		}

		switch outcome {
		case outcomeDownloaded:
			downloaded++
		case outcomeSkipped:
			skipped++
		case outcomeFailed:
			failed++
		}
		if err := o.updateCounters(ctx, task.ID, downloaded, skipped, failed); err != nil {
			return o.storeFailure(ctx, task, log, err)
		}

		// Pace only after the portal was actually hit; pure bookkeeping skips
		// cost nothing remotely.
		if attempted {
			if err := o.pace(ctx); err != nil {
				// loop head turns this into an interrupt
				continue
			}
		}
	}

	log.Info("batch finished",
		"downloaded", downloaded,
		"skipped", skipped,
		"failed", failed,
	)
	return o.finish(ctx, task, domain.TaskStatusCompleted, log)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDownloaded
	outcomeFailed
)

// processCandidate moves one paper to a terminal status, reporting whether
// the portal was contacted. A returned error is either a store failure or a
// cancellation; acquisition failures are absorbed into the paper's status.
func (o *Orchestrator) processCandidate(ctx context.Context, task *domain.Task, cand domain.Candidate, log *slog.Logger) (outcome, bool, error) {
	if err := o.papers.Upsert(ctx, &domain.Paper{
		DocID:  cand.DocID,
		Title:  cand.Title,
		TaskID: &task.ID,
	}); err != nil {
		return 0, false, err
	}

	paper, err := o.papers.Get(ctx, cand.DocID)
	if err != nil {
		return 0, false, err
	}

	switch paper.Status {
	case domain.PaperStatusDownloaded:
		log.Debug("already downloaded", "doc_id", cand.DocID)
		return outcomeSkipped, false, nil
	case domain.PaperStatusSkipped:
		log.Debug("previously skipped", "doc_id", cand.DocID)
		return outcomeSkipped, false, nil
	}

	// The artifact may already be on disk from a run that died before the
	// database write. Trust the file.
	if path, size, ok := o.artifacts.Existing(cand.DocID, paper.Title); ok {
		log.Info("artifact already present", "doc_id", cand.DocID, "path", path)
		if err := o.papers.MarkDownloaded(ctx, cand.DocID, path, size); err != nil {
			return 0, false, err
		}
		return outcomeSkipped, false, nil
	}

	if err := o.papers.MarkInProgress(ctx, cand.DocID); err != nil {
		return 0, false, err
	}

	start := time.Now()
	artifact, err := o.retrier.Do(ctx, cand.DocID, func(ctx context.Context) (*acquire.Artifact, error) {
		return o.acquirer.Acquire(ctx, cand.DocID)
	})
	metrics.AcquireDuration.Observe(time.Since(start).Seconds())

	// Terminal writes below must land even if ctx was cancelled mid-attempt.
	cleanup := context.WithoutCancel(ctx)

	if err != nil {
		if ctx.Err() != nil {
			if rerr := o.papers.ResetToPending(cleanup, cand.DocID); rerr != nil {
				return 0, true, rerr
			}
			return 0, true, ctx.Err()
		}

		var denied *acquire.DeniedError
		if errors.As(err, &denied) {
			log.Warn("access denied, skipping", "doc_id", cand.DocID, "reason", denied.Reason)
			if serr := o.papers.MarkSkipped(cleanup, cand.DocID, denied.Reason); serr != nil {
				return 0, true, serr
			}
			metrics.PapersSkipped.Inc()
			return outcomeSkipped, true, nil
		}

		log.Error("acquisition failed", "doc_id", cand.DocID, "error", err)
		if serr := o.papers.MarkFailed(cleanup, cand.DocID, err.Error()); serr != nil {
			return 0, true, serr
		}
		metrics.PapersFailed.Inc()
		return outcomeFailed, true, nil
	}

	finalPath, size, err := o.artifacts.Finalize(artifact.Path, cand.DocID, paper.Title)
	if err != nil {
		log.Error("failed to finalize artifact", "doc_id", cand.DocID, "error", err)
		if serr := o.papers.MarkFailed(cleanup, cand.DocID, err.Error()); serr != nil {
			return 0, true, serr
		}
		metrics.PapersFailed.Inc()
		return outcomeFailed, true, nil
	}

	if err := o.papers.MarkDownloaded(cleanup, cand.DocID, finalPath, size); err != nil {
		return 0, true, err
	}
	log.Info("paper downloaded", "doc_id", cand.DocID, "path", finalPath, "size", size)
	metrics.PapersDownloaded.Inc()
	metrics.ArtifactBytes.Add(float64(size))
	return outcomeDownloaded, true, nil
}

func (o *Orchestrator) updateCounters(ctx context.Context, taskID int64, downloaded, skipped, failed int) error {
	return o.tasks.UpdateCounters(context.WithoutCancel(ctx), taskID, domain.CounterUpdate{
		Downloaded: &downloaded,
		Skipped:    &skipped,
		Failed:     &failed,
	})
}

// finish writes the terminal status on a detached context and notifies.
func (o *Orchestrator) finish(ctx context.Context, task *domain.Task, status domain.TaskStatus, log *slog.Logger) error {
	cleanup := context.WithoutCancel(ctx)
	if err := o.tasks.Complete(cleanup, task.ID, status); err != nil {
		log.Error("failed to write terminal task status", "status", status, "error", err)
		return err
	}
	log.Info("task finished", "status", status)

	switch status {
	case domain.TaskStatusInterrupted:
		metrics.BatchesInterrupted.Inc()
	case domain.TaskStatusCompleted, domain.TaskStatusNoResults:
		metrics.BatchesCompleted.Inc()
	}

	if o.notifier != nil {
		if final, err := o.tasks.Get(cleanup, task.ID); err == nil {
			o.notifier.BatchFinished(final)
		}
	}

	if status == domain.TaskStatusInterrupted {
		return context.Cause(ctx)
	}
	return nil
}

// storeFailure records an error terminal status after a persistence failure.
// A write that failed only because the run was cancelled is an interrupt,
// not an error.
func (o *Orchestrator) storeFailure(ctx context.Context, task *domain.Task, log *slog.Logger, cause error) error {
	if ctx.Err() != nil {
		return o.finish(ctx, task, domain.TaskStatusInterrupted, log)
	}
	log.Error("store failure aborts batch", "error", cause)
	if err := o.finish(ctx, task, domain.TaskStatusError, log); err != nil {
		return err
	}
	return cause
}

// pace sleeps between papers to stay under the portal's radar.
func (o *Orchestrator) pace(ctx context.Context) error {
	if o.pacing <= 0 {
		return nil
	}
	timer := time.NewTimer(o.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
