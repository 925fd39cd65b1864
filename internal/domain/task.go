package domain

import (
	"time"
)

// TaskStatus represents the lifecycle state of a download task.
// Running is only ever observed in a live process; finding it at startup is
// proof of an unclean shutdown (see the recovery sweep).
type TaskStatus string

const (
	TaskStatusRunning     TaskStatus = "running"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusInterrupted TaskStatus = "interrupted"
	TaskStatusError       TaskStatus = "error"
	TaskStatusNoResults   TaskStatus = "no_results"
)

// IsTerminal reports whether the status marks the end of a task's lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s != TaskStatusRunning
}

// Selector is the request that produced a batch: a free-text query or a
// search results URL, mutually exclusive.
type Selector struct {
	Query     string `json:"query,omitempty"`
	SearchURL string `json:"search_url,omitempty"`
}

// Task is one requested batch of papers sharing a selector.
// The counters are a cache of an aggregate derivable from the papers table;
// they may lag mid-batch but are reconcilable by recomputation at any time.
type Task struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Query              string     `gorm:"column:query" json:"query,omitempty"`
	SearchURL          string     `gorm:"column:search_url" json:"search_url,omitempty"`
	NormalizedSelector string     `gorm:"column:normalized_selector;index" json:"-"`
	MaxResults         int        `gorm:"column:max_results" json:"max_results"`
	TotalFound         int        `gorm:"column:total_found;default:0" json:"total_found"`
	DownloadedCount    int        `gorm:"column:downloaded_count;default:0" json:"downloaded_count"`
	SkippedCount       int        `gorm:"column:skipped_count;default:0" json:"skipped_count"`
	FailedCount        int        `gorm:"column:failed_count;default:0" json:"failed_count"`
	Status             TaskStatus `gorm:"column:status;index;default:running" json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name.
func (Task) TableName() string {
	return "download_tasks"
}

// Selector reconstructs the task's selector.
func (t *Task) Selector() Selector {
	return Selector{Query: t.Query, SearchURL: t.SearchURL}
}

// CounterUpdate carries a partial counter update; nil fields are left as-is.
type CounterUpdate struct {
	TotalFound *int
	Downloaded *int
	Skipped    *int
	Failed     *int
}
