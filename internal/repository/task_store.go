package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

// TaskStore is the durable record of batch tasks.
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore wraps a database handle.
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a fresh running task for a selector.
func (s *TaskStore) Create(ctx context.Context, sel domain.Selector, normalized string, maxResults int) (*domain.Task, error) {
	task := &domain.Task{
		Query:              sel.Query,
		SearchURL:          sel.SearchURL,
		NormalizedSelector: normalized,
		MaxResults:         maxResults,
		Status:             domain.TaskStatusRunning,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Get returns the task with the given id.
func (s *TaskStore) Get(ctx context.Context, id int64) (*domain.Task, error) {
	var task domain.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errpkg.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return &task, nil
}

// FindResumable returns the newest non-completed task for a normalized
// selector, or nil when a fresh task should be created. Completed and
// no-results tasks are never resumed; re-requesting those selectors starts
// over.
func (s *TaskStore) FindResumable(ctx context.Context, normalized string) (*domain.Task, error) {
	var task domain.Task
	err := s.db.WithContext(ctx).
		Where("normalized_selector = ?", normalized).
		Where("status IN ?", []domain.TaskStatus{
			domain.TaskStatusRunning,
			domain.TaskStatusInterrupted,
			domain.TaskStatusError,
		}).
		Order("created_at DESC").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find resumable task: %w", err)
	}
	return &task, nil
}

// MarkRunning flips a resumed task back to running and clears its
// completion time.
func (s *TaskStore) MarkRunning(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.TaskStatusRunning,
			"completed_at": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("mark task %d running: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

// UpdateCounters applies a partial counter update in one statement. Values
// are absolute, not deltas; the orchestrator tracks its own running totals.
func (s *TaskStore) UpdateCounters(ctx context.Context, id int64, upd domain.CounterUpdate) error {
	updates := map[string]any{}
	if upd.TotalFound != nil {
		updates["total_found"] = *upd.TotalFound
	}
	if upd.Downloaded != nil {
		updates["downloaded_count"] = *upd.Downloaded
	}
	if upd.Skipped != nil {
		updates["skipped_count"] = *upd.Skipped
	}
	if upd.Failed != nil {
		updates["failed_count"] = *upd.Failed
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update counters for task %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

// Complete writes a terminal status and stamps the completion time.
// Last write wins, so calling it twice (say, error after interrupted during
// a messy shutdown) is harmless.
func (s *TaskStore) Complete(ctx context.Context, id int64, status domain.TaskStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("complete task %d: %q is not a terminal status", id, status)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete task %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

// RecomputeCounters rebuilds a task's cached counters from its papers.
// Idempotent; called when resuming a task whose counters may have drifted
// during a crash.
func (s *TaskStore) RecomputeCounters(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE download_tasks SET
			downloaded_count = (SELECT COUNT(*) FROM papers WHERE task_id = download_tasks.id AND status = 'downloaded'),
			skipped_count    = (SELECT COUNT(*) FROM papers WHERE task_id = download_tasks.id AND status = 'skipped'),
			failed_count     = (SELECT COUNT(*) FROM papers WHERE task_id = download_tasks.id AND status = 'failed')
		WHERE id = ?
	`, id)
	if res.Error != nil {
		return fmt.Errorf("recompute counters for task %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errpkg.ErrTaskNotFound
	}
	return nil
}

// Recent returns tasks newest first, capped at limit.
func (s *TaskStore) Recent(ctx context.Context, limit int) ([]domain.Task, error) {
	var tasks []domain.Task
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// MarkInterrupted flips every still-running task to interrupted. Part of the
// startup recovery sweep; a running task at startup means the previous
// process died mid-batch.
func (s *TaskStore) MarkInterrupted(ctx context.Context) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("status = ?", domain.TaskStatusRunning).
		Updates(map[string]any{
			"status":       domain.TaskStatusInterrupted,
			"completed_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("interrupt running tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes a task and its papers in one transaction.
func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&domain.Paper{}).Error; err != nil {
			return fmt.Errorf("delete papers for task %d: %w", id, err)
		}
		res := tx.Delete(&domain.Task{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete task %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errpkg.ErrTaskNotFound
		}
		return nil
	})
}
