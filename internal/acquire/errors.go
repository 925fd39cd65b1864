package acquire

import "fmt"

// Disposition is the classified outcome category of a failed acquisition
// attempt. Permanent denial and rate limiting must never be conflated: one
// caps retries, the other encourages them.
type Disposition string

const (
	DispositionUnknown         Disposition = "unknown"
	DispositionPermanentDenied Disposition = "permanent_denied"
	DispositionRateLimited     Disposition = "rate_limited"
	DispositionTransient       Disposition = "transient"
)

// DeniedError indicates the source explicitly refused access to the item.
// Never retried; surfaces as a skip, not a failure.
type DeniedError struct {
	DocID  string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("no access to document %s: %s", e.DocID, e.Reason)
}

// RateLimitedError indicates the source is temporarily refusing requests.
type RateLimitedError struct {
	DocID  string
	Reason string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on document %s: %s", e.DocID, e.Reason)
}

// Artifact is the file produced by a successful acquisition.
type Artifact struct {
	Path string
	Size int64
}
