package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

// ExportAll writes the full paper catalog to a file in the library
// directory and returns its path and the number of records written.
// Supported formats are "json" and "csv".
func (s *HarvestService) ExportAll(ctx context.Context, format string) (string, int, error) {
	if format != "json" && format != "csv" {
		return "", 0, fmt.Errorf("%w: %q", errpkg.ErrInvalidFormat, format)
	}

	papers, err := s.papers.All(ctx)
	if err != nil {
		return "", 0, err
	}

	name := fmt.Sprintf("papers-export-%s.%s", time.Now().Format("20060102-150405"), format)
	path := filepath.Join(s.artifacts.Dir(), name)

	switch format {
	case "json":
		err = writeJSONExport(path, papers)
	case "csv":
		err = writeCSVExport(path, papers)
	}
	if err != nil {
		return "", 0, err
	}

	s.logger.Info("catalog exported", "path", path, "records", len(papers), "format", format)
	return path, len(papers), nil
}

func writeJSONExport(path string, papers []domain.Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(papers); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return f.Close()
}

func writeCSVExport(path string, papers []domain.Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"doc_id", "title", "authors", "publication", "year", "doi", "status", "file_path", "file_size", "error"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for _, p := range papers {
		row := []string{
			p.DocID,
			p.Title,
			p.Authors,
			p.Publication,
			yearField(p.Year),
			p.DOI,
			string(p.Status),
			deref(p.FilePath),
			sizeField(p.FileSize),
			deref(p.ErrorMessage),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return f.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yearField(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func sizeField(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}
