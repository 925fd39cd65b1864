package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

func seedExportPapers(t *testing.T, env *serviceEnv) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.papers.Upsert(ctx, &domain.Paper{DocID: "1", Title: "First Paper", Year: 2024}))
	require.NoError(t, env.papers.Upsert(ctx, &domain.Paper{DocID: "2", Title: "Second, with comma"}))
	require.NoError(t, env.papers.MarkDownloaded(ctx, "1", "/lib/1.pdf", 100))
	require.NoError(t, env.papers.MarkFailed(ctx, "2", "timed out"))
}

func TestExportAll_JSON(t *testing.T) {
	env := newServiceEnv(t)
	seedExportPapers(t, env)

	path, count, err := env.svc.ExportAll(context.Background(), "json")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var papers []domain.Paper
	require.NoError(t, json.Unmarshal(data, &papers))
	require.Len(t, papers, 2)
	assert.Equal(t, "First Paper", papers[0].Title)
}

func TestExportAll_CSV(t *testing.T) {
	env := newServiceEnv(t)
	seedExportPapers(t, env)

	path, count, err := env.svc.ExportAll(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two records")
	assert.Equal(t, "doc_id", rows[0][0])
	assert.Equal(t, "Second, with comma", rows[2][1])
	assert.Equal(t, "failed", rows[2][6])
	assert.Equal(t, "timed out", rows[2][9])
}

func TestExportAll_UnknownFormat(t *testing.T) {
	env := newServiceEnv(t)
	_, _, err := env.svc.ExportAll(context.Background(), "xml")
	require.ErrorIs(t, err, errpkg.ErrInvalidFormat)
}
