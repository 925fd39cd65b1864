package domain

// StartBatchRequest represents the request body for starting a new batch.
// Exactly one of Query and SearchURL must be set.
type StartBatchRequest struct {
	Query      string `json:"query" validate:"omitempty,min=2"`
	SearchURL  string `json:"search_url" validate:"omitempty,url"`
	MaxResults int    `json:"max_results" validate:"omitempty,min=1,max=1000"`
}

// ExportRequest selects the catalog export format.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=json csv"`
}

// Stats summarizes the paper table for the dashboard.
type Stats struct {
	Total      int64 `json:"total"`
	Downloaded int64 `json:"downloaded"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Pending    int64 `json:"pending"`
	TotalSize  int64 `json:"total_size"`
}
