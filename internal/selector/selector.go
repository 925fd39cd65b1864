// Package selector normalizes batch selectors so that two requests differing
// only in pagination state or query-string ordering resolve to the same
// logical batch.
package selector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/veranemoloko/paper-harvester/internal/domain"
	errpkg "github.com/veranemoloko/paper-harvester/internal/errors"
)

// volatileParams are query parameters rewritten on every page fetch or added
// as cache busters; they never change which logical batch a URL identifies.
var volatileParams = map[string]struct{}{
	"pageNumber":  {},
	"rowsPerPage": {},
	"newsearch":   {},
	"_":           {},
	"ts":          {},
	"nocache":     {},
}

// Validate checks that the selector sets exactly one of query and search URL,
// and that a search URL is a well-formed http(s) locator.
func Validate(sel domain.Selector) error {
	hasQuery := strings.TrimSpace(sel.Query) != ""
	hasURL := strings.TrimSpace(sel.SearchURL) != ""

	if hasQuery == hasURL {
		return errpkg.ErrBadSelector
	}

	if hasURL {
		u, err := url.Parse(sel.SearchURL)
		if err != nil {
			return fmt.Errorf("invalid search URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("search URL must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("search URL must have a host")
		}
	}

	return nil
}

// Normalize returns the canonical form of a selector. Free-text queries
// compare case-insensitively after whitespace collapsing; search URLs are
// stripped of volatile parameters and have the rest sorted.
func Normalize(sel domain.Selector) string {
	if q := strings.TrimSpace(sel.Query); q != "" {
		return "q:" + strings.ToLower(strings.Join(strings.Fields(q), " "))
	}
	return "u:" + normalizeURL(sel.SearchURL)
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	q := u.Query()
	for param := range q {
		if _, ok := volatileParams[param]; ok {
			q.Del(param)
		}
	}

	// Encode sorts keys, which makes parameter order irrelevant.
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	return u.String()
}

// PageURL rewrites a search URL for a specific result page, preserving any
// refinement parameters the caller set.
func PageURL(searchURL string, pageNumber, rowsPerPage int) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("parse search URL: %w", err)
	}

	q := u.Query()
	q.Set("pageNumber", fmt.Sprintf("%d", pageNumber))
	q.Set("rowsPerPage", fmt.Sprintf("%d", rowsPerPage))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
