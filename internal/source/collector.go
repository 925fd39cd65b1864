package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	"github.com/veranemoloko/paper-harvester/internal/selector"
)

// extractScript pulls document numbers and titles out of result-page
// anchors. Portals link every result as /document/<number>; the anchor text
// is the title.
const extractScript = `Array.from(document.querySelectorAll("a[href*='/document/']"))
	.map(a => {
		const m = a.getAttribute("href").match(/\/document\/(\d+)/);
		return m ? { doc_id: m[1], title: a.innerText.trim() } : null;
	})
	.filter(r => r !== null && r.title !== "")`

// CollectorConfig carries the search pagination knobs.
type CollectorConfig struct {
	// SearchTemplate turns a free-text query into a results URL; %s is the
	// URL-encoded query.
	SearchTemplate string
	RowsPerPage    int
	MaxPages       int
}

// PageCollector walks search result pages in the shared browser session and
// extracts the ordered candidate list.
type PageCollector struct {
	session *Session
	cfg     CollectorConfig
	logger  *slog.Logger
}

// NewPageCollector builds a collector over an attached session.
func NewPageCollector(session *Session, cfg CollectorConfig, logger *slog.Logger) *PageCollector {
	return &PageCollector{session: session, cfg: cfg, logger: logger}
}

// Collect paginates through the selector's search results until maxResults
// candidates are gathered, a page comes back empty, or the page cap is hit.
// Order follows the portal's ranking; duplicates across pages are dropped.
func (c *PageCollector) Collect(ctx context.Context, sel domain.Selector, maxResults int) ([]domain.Candidate, error) {
	searchURL, err := c.searchURL(sel)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, maxResults)
	seen := make(map[string]struct{})

	for page := 1; page <= c.cfg.MaxPages && len(candidates) < maxResults; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL, err := selector.PageURL(searchURL, page, c.cfg.RowsPerPage)
		if err != nil {
			return nil, err
		}

		if err := c.session.Navigate(ctx, pageURL); err != nil {
			return nil, fmt.Errorf("load results page %d: %w", page, err)
		}

		var found []domain.Candidate
		if err := c.session.evaluate(ctx, extractScript, &found); err != nil {
			return nil, fmt.Errorf("extract results from page %d: %w", page, err)
		}
		if len(found) == 0 {
			break
		}

		added := 0
		for _, cand := range found {
			if _, dup := seen[cand.DocID]; dup {
				continue
			}
			seen[cand.DocID] = struct{}{}
			candidates = append(candidates, cand)
			added++
			if len(candidates) >= maxResults {
				break
			}
		}
		c.logger.Debug("results page scanned", "page", page, "found", len(found), "new", added)

		// A page of nothing but repeats means the portal has started cycling.
		if added == 0 {
			break
		}
	}

	return candidates, nil
}

func (c *PageCollector) searchURL(sel domain.Selector) (string, error) {
	if strings.TrimSpace(sel.SearchURL) != "" {
		return sel.SearchURL, nil
	}
	q := strings.TrimSpace(sel.Query)
	if q == "" {
		return "", fmt.Errorf("selector has neither query nor search URL")
	}
	return fmt.Sprintf(c.cfg.SearchTemplate, url.QueryEscape(q)), nil
}
