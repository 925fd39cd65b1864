// Package recovery repairs state left behind by an unclean shutdown.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veranemoloko/paper-harvester/internal/repository"
)

// Sweep runs at startup, before any batch is accepted. Papers stuck
// in_progress go back to pending and tasks still marked running become
// interrupted; both are only possible if the previous process died
// mid-batch. Returns how many rows of each kind were repaired.
func Sweep(ctx context.Context, papers *repository.PaperStore, tasks *repository.TaskStore, logger *slog.Logger) (int64, int64, error) {
	papersReset, err := papers.ResetInProgress(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("recovery: %w", err)
	}

	tasksInterrupted, err := tasks.MarkInterrupted(ctx)
	if err != nil {
		return papersReset, 0, fmt.Errorf("recovery: %w", err)
	}

	if papersReset > 0 || tasksInterrupted > 0 {
		logger.Warn("recovered from unclean shutdown",
			"papers_reset", papersReset,
			"tasks_interrupted", tasksInterrupted,
		)
	} else {
		logger.Info("clean startup, nothing to recover")
	}
	return papersReset, tasksInterrupted, nil
}
