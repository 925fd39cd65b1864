package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/paper-harvester/internal/domain"
)

func writeLegacyLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "download_state.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestImportLegacyLog(t *testing.T) {
	s := NewPaperStore(testDB(t))
	path := writeLegacyLog(t, `{"arnumber":"8812345","title":"Radar Imaging","status":"downloaded","file":"/lib/8812345.pdf"}
{"arnumber":"8812346","title":"Quantum Radar","status":"skipped","error":"outside of your subscription"}
{"arnumber":"8812347","title":"Pending Paper","status":"pending"}
{"arnumber":"8812348","title":"Broken Attempt","status":"failed","error":"timeout"}
`)

	n, err := ImportLegacyLog(context.Background(), s, path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	p, err := s.Get(context.Background(), "8812345")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusDownloaded, p.Status)
	require.NotNil(t, p.FilePath)
	assert.Equal(t, "/lib/8812345.pdf", *p.FilePath)

	p, err = s.Get(context.Background(), "8812346")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusSkipped, p.Status)
	require.NotNil(t, p.ErrorMessage)
	assert.Equal(t, "outside of your subscription", *p.ErrorMessage)

	p, err = s.Get(context.Background(), "8812347")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusPending, p.Status)

	p, err = s.Get(context.Background(), "8812348")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusFailed, p.Status)
}

func TestImportLegacyLog_LastLineWins(t *testing.T) {
	s := NewPaperStore(testDB(t))
	path := writeLegacyLog(t, `{"arnumber":"1","title":"Paper","status":"failed","error":"timeout"}
{"arnumber":"1","title":"Paper","status":"downloaded","file":"/lib/1.pdf"}
`)

	n, err := ImportLegacyLog(context.Background(), s, path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := s.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusDownloaded, p.Status)
}

func TestImportLegacyLog_SkipsMalformedLines(t *testing.T) {
	s := NewPaperStore(testDB(t))
	path := writeLegacyLog(t, `not json at all
{"arnumber":"","title":"no id","status":"pending"}
{"arnumber":"2","title":"Good","status":"pending"}

`)

	n, err := ImportLegacyLog(context.Background(), s, path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(context.Background(), "2")
	require.NoError(t, err)
}

func TestImportLegacyLog_MissingFile(t *testing.T) {
	s := NewPaperStore(testDB(t))
	_, err := ImportLegacyLog(context.Background(), s, filepath.Join(t.TempDir(), "nope.jsonl"), discardLogger())
	require.Error(t, err)
}
