package domain

import (
	"time"
)

// PaperStatus represents the acquisition state of a single paper.
type PaperStatus string

const (
	PaperStatusPending    PaperStatus = "pending"
	PaperStatusInProgress PaperStatus = "in_progress"
	PaperStatusDownloaded PaperStatus = "downloaded"
	PaperStatusSkipped    PaperStatus = "skipped"
	PaperStatusFailed     PaperStatus = "failed"
)

// Paper is one retrievable document, keyed by its stable document number.
// FilePath and FileSize are set only while Status is downloaded;
// ErrorMessage only while Status is skipped or failed.
type Paper struct {
	DocID        string      `gorm:"column:doc_id;primaryKey" json:"doc_id"`
	Title        string      `gorm:"column:title;not null" json:"title"`
	Authors      string      `gorm:"column:authors" json:"authors,omitempty"`
	Publication  string      `gorm:"column:publication" json:"publication,omitempty"`
	Year         int         `gorm:"column:year" json:"year,omitempty"`
	DOI          string      `gorm:"column:doi" json:"doi,omitempty"`
	Abstract     string      `gorm:"column:abstract" json:"abstract,omitempty"`
	Status       PaperStatus `gorm:"column:status;index;default:pending" json:"status"`
	FilePath     *string     `gorm:"column:file_path" json:"file_path,omitempty"`
	FileSize     *int64      `gorm:"column:file_size" json:"file_size,omitempty"`
	ErrorMessage *string     `gorm:"column:error_message" json:"error_message,omitempty"`
	TaskID       *int64      `gorm:"column:task_id;index" json:"task_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name.
func (Paper) TableName() string {
	return "papers"
}

// Candidate is one search result handed to the orchestrator by the collector.
type Candidate struct {
	DocID string `json:"doc_id"`
	Title string `json:"title"`
}
