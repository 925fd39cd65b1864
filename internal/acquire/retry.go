package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds the outer retry loop around a full multi-strategy
// attempt.
type RetryPolicy struct {
	MaxAttempts int
	// Rate-limit backoff grows linearly: attempt × RateLimitUnit.
	RateLimitUnit  time.Duration
	TransientDelay time.Duration
	UnknownDelay   time.Duration
}

// DefaultRetryPolicy mirrors the portal's observed tolerance: three
// attempts, 30s/60s/90s when rate limited, a short pause otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		RateLimitUnit:  30 * time.Second,
		TransientDelay: 2 * time.Second,
		UnknownDelay:   2 * time.Second,
	}
}

// Retrier wraps an acquisition function in a bounded, classified retry loop.
type Retrier struct {
	policy     RetryPolicy
	classifier *Classifier
	logger     *slog.Logger
}

// NewRetrier builds a retrier from a policy and classifier.
func NewRetrier(policy RetryPolicy, classifier *Classifier, logger *slog.Logger) *Retrier {
	return &Retrier{policy: policy, classifier: classifier, logger: logger}
}

// Do runs attempt up to the policy bound, classifying each failure.
// Permanent denial returns immediately; rate limiting backs off linearly;
// transient and unknown failures retry after a short fixed delay. The last
// error is propagated once attempts are exhausted. Context cancellation
// passes through unclassified.
func (r *Retrier) Do(ctx context.Context, docID string, attempt func(context.Context) (*Artifact, error)) (*Artifact, error) {
	var lastErr error

	for n := 1; n <= r.policy.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		artifact, err := attempt(ctx)
		if err == nil {
			return artifact, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("attempt cancelled: %w", ctx.Err())
		}

		lastErr = err
		disposition := r.classifier.Classify(err)

		if disposition == DispositionPermanentDenied {
			r.logger.Warn("no access, not retrying", "doc_id", docID, "error", err)
			return nil, err
		}
		if n == r.policy.MaxAttempts {
			break
		}

		switch disposition {
		case DispositionRateLimited:
			backoff := time.Duration(n) * r.policy.RateLimitUnit
			r.logger.Warn("rate limited, backing off",
				"doc_id", docID,
				"attempt", n,
				"backoff", backoff,
			)
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		case DispositionTransient:
			r.logger.Warn("transient failure",
				"doc_id", docID,
				"attempt", n,
				"error", err,
			)
			if err := r.sleep(ctx, r.policy.TransientDelay); err != nil {
				return nil, err
			}
		default:
			r.logger.Warn("unclassified failure",
				"doc_id", docID,
				"attempt", n,
				"error", err,
			)
			if err := r.sleep(ctx, r.policy.UnknownDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("exhausted %d attempts for document %s: %w", r.policy.MaxAttempts, docID, lastErr)
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
