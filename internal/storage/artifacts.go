// Package storage names and places downloaded artifacts in the library
// directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxTitleLen = 100

// ArtifactStore owns the final resting place of downloaded PDFs. The
// browser drops files under arbitrary names into the download directory;
// Finalize moves them to their canonical "docID - title.pdf" name.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the library directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// TargetPath returns the canonical path for a document's artifact.
func (s *ArtifactStore) TargetPath(docID, title string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s - %s.pdf", docID, sanitizeTitle(title)))
}

// Existing reports whether a document's artifact is already on disk,
// returning its path and size when present. An empty file does not count;
// it is a leftover from an interrupted move.
func (s *ArtifactStore) Existing(docID, title string) (string, int64, bool) {
	path := s.TargetPath(docID, title)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return "", 0, false
	}
	return path, info.Size(), true
}

// Finalize moves a freshly downloaded file to its canonical name and
// returns the final path and size. A name collision with a different file
// gets a short unique suffix rather than an overwrite.
func (s *ArtifactStore) Finalize(srcPath, docID, title string) (string, int64, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat downloaded file: %w", err)
	}
	size := info.Size()

	dst := s.TargetPath(docID, title)
	if srcPath == dst {
		return dst, size, nil
	}

	if _, err := os.Stat(dst); err == nil {
		base := strings.TrimSuffix(dst, ".pdf")
		dst = fmt.Sprintf("%s (%s).pdf", base, uuid.NewString()[:8])
	}

	if err := os.Rename(srcPath, dst); err != nil {
		return "", 0, fmt.Errorf("move artifact into place: %w", err)
	}
	return dst, size, nil
}

// sanitizeTitle strips filesystem-hostile characters and bounds the length
// so the canonical name is safe on every platform the library syncs to.
func sanitizeTitle(title string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "",
	)
	clean := strings.TrimSpace(replacer.Replace(title))
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		clean = "untitled"
	}
	if len(clean) > maxTitleLen {
		clean = strings.TrimSpace(clean[:maxTitleLen])
	}
	return clean
}
