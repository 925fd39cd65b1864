package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     domain.Selector
		wantErr bool
	}{
		{"query only", domain.Selector{Query: "deep learning"}, false},
		{"url only", domain.Selector{SearchURL: "https://example.org/search?q=x"}, false},
		{"both set", domain.Selector{Query: "x", SearchURL: "https://example.org"}, true},
		{"neither set", domain.Selector{}, true},
		{"whitespace query only", domain.Selector{Query: "   "}, true},
		{"ftp url", domain.Selector{SearchURL: "ftp://example.org/search"}, true},
		{"url without host", domain.Selector{SearchURL: "https:///search"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sel)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidate_BothSetReturnsSentinel(t *testing.T) {
	err := Validate(domain.Selector{Query: "x", SearchURL: "https://example.org"})
	require.ErrorIs(t, err, errpkg.ErrBadSelector)
}

func TestNormalize_Query(t *testing.T) {
	a := Normalize(domain.Selector{Query: "Deep  Learning"})
	b := Normalize(domain.Selector{Query: "  deep learning "})
	assert.Equal(t, a, b)
	assert.Equal(t, "q:deep learning", a)
}

func TestNormalize_URLStripsVolatileParams(t *testing.T) {
	a := Normalize(domain.Selector{
		SearchURL: "https://example.org/search?queryText=nlp&pageNumber=3&rowsPerPage=100",
	})
	b := Normalize(domain.Selector{
		SearchURL: "https://example.org/search?queryText=nlp&pageNumber=7&newsearch=true",
	})
	assert.Equal(t, a, b)
}

func TestNormalize_URLSortsParamsAndDropsFragment(t *testing.T) {
	a := Normalize(domain.Selector{SearchURL: "https://Example.org/search?b=2&a=1#results"})
	b := Normalize(domain.Selector{SearchURL: "https://example.org/search?a=1&b=2"})
	assert.Equal(t, a, b)
}

func TestNormalize_QueryAndURLNeverCollide(t *testing.T) {
	q := Normalize(domain.Selector{Query: "https://example.org/search"})
	u := Normalize(domain.Selector{SearchURL: "https://example.org/search"})
	assert.NotEqual(t, q, u)
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("https://example.org/search?queryText=nlp&refinements=Year_2024", 3, 100)
	require.NoError(t, err)

	assert.Contains(t, got, "pageNumber=3")
	assert.Contains(t, got, "rowsPerPage=100")
	assert.Contains(t, got, "queryText=nlp")
	assert.Contains(t, got, "refinements=Year_2024")
}

func TestPageURL_OverwritesExistingPagination(t *testing.T) {
	got, err := PageURL("https://example.org/search?pageNumber=1&rowsPerPage=25", 2, 50)
	require.NoError(t, err)

	assert.Contains(t, got, "pageNumber=2")
	assert.Contains(t, got, "rowsPerPage=50")
	assert.NotContains(t, got, "pageNumber=1")
}
