package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/veranemoloko/paper-harvester/internal/domain"
)

// legacyRecord is one line of the old append-only JSONL state log, which
// keyed papers by "arnumber".
type legacyRecord struct {
	ARNumber string `json:"arnumber"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	File     string `json:"file,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ImportLegacyLog loads a JSONL state log into the paper store. Later lines
// for the same document overwrite earlier ones, matching the log's
// append-only semantics. Malformed lines are skipped with a warning. Returns
// the number of records imported.
func ImportLegacyLog(ctx context.Context, papers *PaperStore, path string, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open legacy log: %w", err)
	}
	defer f.Close()

	imported := 0
	lineNo := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec legacyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed legacy line", "line", lineNo, "error", err)
			continue
		}
		if rec.ARNumber == "" {
			logger.Warn("skipping legacy line without document number", "line", lineNo)
			continue
		}

		if err := importRecord(ctx, papers, rec); err != nil {
			return imported, fmt.Errorf("import line %d: %w", lineNo, err)
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("read legacy log: %w", err)
	}

	logger.Info("legacy state imported", "path", path, "records", imported)
	return imported, nil
}

func importRecord(ctx context.Context, papers *PaperStore, rec legacyRecord) error {
	title := rec.Title
	if title == "" {
		title = rec.ARNumber
	}
	if err := papers.Upsert(ctx, &domain.Paper{DocID: rec.ARNumber, Title: title}); err != nil {
		return err
	}

	switch rec.Status {
	case "downloaded":
		var size int64
		if rec.File != "" {
			if info, err := os.Stat(rec.File); err == nil {
				size = info.Size()
			}
		}
		return papers.MarkDownloaded(ctx, rec.ARNumber, rec.File, size)
	case "skipped":
		return papers.MarkSkipped(ctx, rec.ARNumber, rec.Error)
	case "failed":
		return papers.MarkFailed(ctx, rec.ARNumber, rec.Error)
	default:
		// pending and anything unrecognized stay pending
		return nil
	}
}
