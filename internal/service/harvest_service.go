// Package service exposes the application's use cases to the transport
// layer and owns the lifecycle of background batch runs.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
	"github.com/veranemoloko/paper-harvester/internal/repository"
	"github.com/veranemoloko/paper-harvester/internal/storage"
)

// defaultMaxResults bounds a batch when the request leaves max_results unset.
const defaultMaxResults = 25

// BatchEngine prepares and runs batches; *orchestrator.Orchestrator is the
// production implementation.
type BatchEngine interface {
	Prepare(ctx context.Context, sel domain.Selector, maxResults int) (*domain.Task, error)
	Execute(ctx context.Context, task *domain.Task) error
}

// HarvestService coordinates batch runs over a single shared browser
// session. Batches are accepted concurrently but executed one at a time.
type HarvestService struct {
	engine     BatchEngine
	papers     *repository.PaperStore
	tasks      *repository.TaskStore
	artifacts  *storage.ArtifactStore
	legacyPath string
	logger     *slog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
	// runMu serializes Execute; the browser cannot drive two batches at once.
	runMu sync.Mutex

	wg           sync.WaitGroup
	shutdownChan chan struct{}
}

// NewHarvestService wires the service.
func NewHarvestService(
	engine BatchEngine,
	papers *repository.PaperStore,
	tasks *repository.TaskStore,
	artifacts *storage.ArtifactStore,
	legacyPath string,
	logger *slog.Logger,
) *HarvestService {
	return &HarvestService{
		engine:       engine,
		papers:       papers,
		tasks:        tasks,
		artifacts:    artifacts,
		legacyPath:   legacyPath,
		logger:       logger,
		running:      make(map[int64]context.CancelFunc),
		shutdownChan: make(chan struct{}),
	}
}

// StartBatch resolves the request to a task synchronously (so the caller
// gets the task id) and runs the batch in the background.
func (s *HarvestService) StartBatch(ctx context.Context, req domain.StartBatchRequest) (*domain.Task, error) {
	select {
	case <-s.shutdownChan:
		return nil, errpkg.ErrShuttingDown
	default:
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	task, err := s.engine.Prepare(ctx, domain.Selector{Query: req.Query, SearchURL: req.SearchURL}, maxResults)
	if err != nil {
		return nil, err
	}

	// The run outlives the HTTP request; its context is tied to service
	// shutdown and explicit cancellation, not to the caller.
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if _, already := s.running[task.ID]; already {
		s.mu.Unlock()
		cancel()
		return task, fmt.Errorf("task %d is already running", task.ID)
	}
	s.running[task.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, cancel, task)

	s.logger.Info("batch accepted", "task_id", task.ID, "max_results", maxResults)
	return task, nil
}

func (s *HarvestService) run(ctx context.Context, cancel context.CancelFunc, task *domain.Task) {
	defer s.wg.Done()
	defer cancel()
	defer func() {
		s.mu.Lock()
		delete(s.running, task.ID)
		s.mu.Unlock()
	}()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.engine.Execute(ctx, task); err != nil && ctx.Err() == nil {
		s.logger.Error("batch run failed", "task_id", task.ID, "error", err)
	}
}

// CancelBatch interrupts a running batch. Returns ErrTaskNotFound for an
// unknown task and an error for a task that is not running.
func (s *HarvestService) CancelBatch(ctx context.Context, taskID int64) error {
	s.mu.Lock()
	cancel, ok := s.running[taskID]
	s.mu.Unlock()

	if ok {
		s.logger.Info("cancelling batch", "task_id", taskID)
		cancel()
		return nil
	}

	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return err
	}
	return fmt.Errorf("task %d is not running", taskID)
}

// GetStats returns library-wide aggregates.
func (s *HarvestService) GetStats(ctx context.Context) (*domain.Stats, error) {
	return s.papers.Stats(ctx)
}

// ListPapers lists papers, optionally filtered by status and task.
func (s *HarvestService) ListPapers(ctx context.Context, status *domain.PaperStatus, taskID *int64) ([]domain.Paper, error) {
	return s.papers.List(ctx, status, taskID)
}

// SearchPapers finds papers whose title or abstract contains the keyword.
func (s *HarvestService) SearchPapers(ctx context.Context, keyword string) ([]domain.Paper, error) {
	return s.papers.Search(ctx, keyword)
}

// GetPaper returns one paper by document number.
func (s *HarvestService) GetPaper(ctx context.Context, docID string) (*domain.Paper, error) {
	return s.papers.Get(ctx, docID)
}

// ResetPaper puts a skipped or failed paper back in line for the next batch
// that selects it.
func (s *HarvestService) ResetPaper(ctx context.Context, docID string) error {
	paper, err := s.papers.Get(ctx, docID)
	if err != nil {
		return err
	}
	if paper.Status == domain.PaperStatusInProgress {
		return fmt.Errorf("paper %s is being acquired right now", docID)
	}
	return s.papers.ResetToPending(ctx, docID)
}

// ListTasks returns recent tasks, newest first.
func (s *HarvestService) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.tasks.Recent(ctx, limit)
}

// GetTask returns one task.
func (s *HarvestService) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

// DeleteTask removes a finished task and its papers. Running tasks must be
// cancelled first.
func (s *HarvestService) DeleteTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	_, isRunning := s.running[id]
	s.mu.Unlock()
	if isRunning {
		return fmt.Errorf("task %d is running, cancel it first", id)
	}
	return s.tasks.Delete(ctx, id)
}

// ImportLegacy loads the configured legacy JSONL state log into the store.
func (s *HarvestService) ImportLegacy(ctx context.Context) (int, error) {
	return repository.ImportLegacyLog(ctx, s.papers, s.legacyPath, s.logger)
}

// Shutdown stops accepting batches, cancels any running ones and waits for
// them to write their terminal state, bounded by ctx.
func (s *HarvestService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down harvest service")
	close(s.shutdownChan)

	s.mu.Lock()
	for id, cancel := range s.running {
		s.logger.Info("interrupting batch for shutdown", "task_id", id)
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("harvest service shutdown completed")
		return nil
	case <-ctx.Done():
		s.logger.Warn("harvest service shutdown timed out")
		return ctx.Err()
	}
}
