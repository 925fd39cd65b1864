package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

// PaperStore is the durable record of every known paper. All mutations are
// single statements, so a concurrent reader never observes a half-updated
// row.
type PaperStore struct {
	db *gorm.DB
}

// NewPaperStore wraps a database handle.
func NewPaperStore(db *gorm.DB) *PaperStore {
	return &PaperStore{db: db}
}

// Upsert seeds a paper row. The first insert for a document number wins;
// re-seeding an existing row is a no-op, so candidate lists can be replayed
// safely.
func (s *PaperStore) Upsert(ctx context.Context, p *domain.Paper) error {
	if p.Status == "" {
		p.Status = domain.PaperStatusPending
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("upsert paper %s: %w", p.DocID, err)
	}
	return nil
}

// Get returns the paper with the given document number.
func (s *PaperStore) Get(ctx context.Context, docID string) (*domain.Paper, error) {
	var p domain.Paper
	err := s.db.WithContext(ctx).First(&p, "doc_id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errpkg.ErrPaperNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get paper %s: %w", docID, err)
	}
	return &p, nil
}

// MarkInProgress records that an acquisition attempt has started.
func (s *PaperStore) MarkInProgress(ctx context.Context, docID string) error {
	return s.setStatus(ctx, docID, domain.PaperStatusInProgress, nil, nil, nil)
}

// MarkDownloaded records a successful acquisition with its artifact
// metadata.
func (s *PaperStore) MarkDownloaded(ctx context.Context, docID, filePath string, fileSize int64) error {
	return s.setStatus(ctx, docID, domain.PaperStatusDownloaded, &filePath, &fileSize, nil)
}

// MarkSkipped records a permanent denial or an intentional skip.
func (s *PaperStore) MarkSkipped(ctx context.Context, docID, reason string) error {
	return s.setStatus(ctx, docID, domain.PaperStatusSkipped, nil, nil, &reason)
}

// MarkFailed records an acquisition that exhausted its retries.
func (s *PaperStore) MarkFailed(ctx context.Context, docID, errMsg string) error {
	return s.setStatus(ctx, docID, domain.PaperStatusFailed, nil, nil, &errMsg)
}

// ResetToPending clears a paper back to pending, dropping any error text.
// This is the manual retry trigger.
func (s *PaperStore) ResetToPending(ctx context.Context, docID string) error {
	return s.setStatus(ctx, docID, domain.PaperStatusPending, nil, nil, nil)
}

// setStatus overwrites the status and exactly the fields relevant to it in
// one statement, refreshing updated_at. Artifact metadata is non-null iff
// downloaded; error text is non-null only for skipped/failed.
func (s *PaperStore) setStatus(ctx context.Context, docID string, status domain.PaperStatus, filePath *string, fileSize *int64, errMsg *string) error {
	updates := map[string]any{
		"status":        status,
		"file_path":     filePath,
		"file_size":     fileSize,
		"error_message": errMsg,
		"updated_at":    time.Now(),
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Paper{}).
		Where("doc_id = ?", docID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("set paper %s status %s: %w", docID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return errpkg.ErrPaperNotFound
	}
	return nil
}

// List returns papers filtered by optional status and owning task, most
// recently updated first.
func (s *PaperStore) List(ctx context.Context, status *domain.PaperStatus, taskID *int64) ([]domain.Paper, error) {
	q := s.db.WithContext(ctx).Model(&domain.Paper{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if taskID != nil {
		q = q.Where("task_id = ?", *taskID)
	}

	var papers []domain.Paper
	if err := q.Order("updated_at DESC").Find(&papers).Error; err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return papers, nil
}

// Search matches a keyword as a substring of title or abstract.
func (s *PaperStore) Search(ctx context.Context, keyword string) ([]domain.Paper, error) {
	pattern := "%" + keyword + "%"

	var papers []domain.Paper
	err := s.db.WithContext(ctx).
		Where("title LIKE ? OR abstract LIKE ?", pattern, pattern).
		Order("updated_at DESC").
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}
	return papers, nil
}

// All returns every paper in creation order, for export.
func (s *PaperStore) All(ctx context.Context) ([]domain.Paper, error) {
	var papers []domain.Paper
	if err := s.db.WithContext(ctx).Order("created_at").Find(&papers).Error; err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	return papers, nil
}

// Stats aggregates the paper table in a single query.
func (s *PaperStore) Stats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*)                                                    AS total,
			SUM(CASE WHEN status = 'downloaded' THEN 1 ELSE 0 END)      AS downloaded,
			SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END)         AS skipped,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)          AS failed,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END)         AS pending,
			COALESCE(SUM(COALESCE(file_size, 0)), 0)                    AS total_size
		FROM papers
	`).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	return &stats, nil
}

// ResetInProgress moves in-progress papers back to pending; scoped to one
// task when taskID is non-nil. Returns the number of rows repaired.
func (s *PaperStore) ResetInProgress(ctx context.Context, taskID *int64) (int64, error) {
	q := s.db.WithContext(ctx).
		Model(&domain.Paper{}).
		Where("status = ?", domain.PaperStatusInProgress)
	if taskID != nil {
		q = q.Where("task_id = ?", *taskID)
	}

	res := q.Updates(map[string]any{
		"status":        domain.PaperStatusPending,
		"error_message": nil,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("reset in-progress papers: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus counts a task's papers per status in one pass.
func (s *PaperStore) CountByStatus(ctx context.Context, taskID int64) (map[domain.PaperStatus]int, error) {
	var rows []struct {
		Status domain.PaperStatus
		N      int
	}
	err := s.db.WithContext(ctx).
		Model(&domain.Paper{}).
		Select("status, COUNT(*) AS n").
		Where("task_id = ?", taskID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count papers for task %d: %w", taskID, err)
	}

	counts := make(map[domain.PaperStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// DeleteByTask removes the papers owned by a task. Used by the cascading
// task delete.
func (s *PaperStore) DeleteByTask(ctx context.Context, taskID int64) error {
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Delete(&domain.Paper{}).Error
	if err != nil {
		return fmt.Errorf("delete papers for task %d: %w", taskID, err)
	}
	return nil
}
