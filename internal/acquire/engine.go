package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/veranemoloko/paper-harvester/internal/watcher"
)

// Strategy is one method of triggering an artifact download for a document.
// Attempt either primes a download (the watcher decides whether a file
// actually appeared) or returns an error that aborts the whole attempt —
// typically a proactively detected DeniedError or RateLimitedError.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, docID string) error
}

// EngineConfig carries the tunables of the multi-strategy engine.
type EngineConfig struct {
	DownloadDir string
	// StrategyWait is the short window each strategy gets for a download to
	// materialize before the engine falls through to the next one.
	StrategyWait time.Duration
	// ItemTimeout is the whole attempt's budget; whatever remains after the
	// last strategy becomes one final wait.
	ItemTimeout time.Duration
}

// Engine tries an ordered sequence of acquisition strategies for one
// document until the completion watcher observes a new artifact or the
// strategies are exhausted.
type Engine struct {
	cfg        EngineConfig
	strategies []Strategy
	watch      *watcher.Watcher
	logger     *slog.Logger
}

// NewEngine builds an engine over an explicit strategy list. Use
// DefaultStrategies for the standard ordering.
func NewEngine(cfg EngineConfig, strategies []Strategy, watch *watcher.Watcher, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		strategies: strategies,
		watch:      watch,
		logger:     logger,
	}
}

// Acquire produces a downloaded artifact for docID or a classified error.
func (e *Engine) Acquire(ctx context.Context, docID string) (*Artifact, error) {
	before, err := watcher.Snapshot(e.cfg.DownloadDir)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	deadline := started.Add(e.cfg.ItemTimeout)

	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.logger.Debug("trying acquisition strategy", "doc_id", docID, "strategy", s.Name())
		if err := s.Attempt(ctx, docID); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
		}

		wait := e.cfg.StrategyWait
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}

		path, err := e.watch.Await(ctx, e.cfg.DownloadDir, started, wait, before)
		if err == nil {
			e.logger.Debug("artifact appeared", "doc_id", docID, "strategy", s.Name(), "path", path)
			return artifactAt(path)
		}
		if !errors.Is(err, watcher.ErrTimeout) {
			return nil, err
		}
	}

	// Strategies exhausted: give a slow download the rest of the budget.
	if remaining := time.Until(deadline); remaining > 0 {
		path, err := e.watch.Await(ctx, e.cfg.DownloadDir, started, remaining, before)
		if err == nil {
			return artifactAt(path)
		}
		if !errors.Is(err, watcher.ErrTimeout) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all strategies exhausted for document %s: %w", docID, watcher.ErrTimeout)
}

func artifactAt(path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &Artifact{Path: path, Size: info.Size()}, nil
}
