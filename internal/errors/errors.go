package errors

import "errors"

var (
	ErrPaperNotFound = errors.New("paper not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrBadSelector   = errors.New("selector must set exactly one of query and search_url")
	ErrInvalidFormat = errors.New("unsupported export format")
	ErrShuttingDown  = errors.New("service is shutting down")
)
