// Package source holds the collaborator boundary toward the remote document
// portal: the browser capability the acquisition strategies operate on, the
// candidate collector, and a chromedp-backed implementation of both that
// attaches to an already running (and already logged-in) browser.
package source

import (
	"context"

	"github.com/veranemoloko/paper-harvester/internal/domain"
)

// Browser is the opaque page-automation capability injected into the
// acquisition engine. Implementations must be safe for sequential use; the
// engine never issues concurrent calls.
type Browser interface {
	// Navigate opens the given location and waits for the document to settle.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the location the browser ended up at.
	CurrentURL(ctx context.Context) (string, error)

	// PageText returns the rendered text of the current page body.
	PageText(ctx context.Context) (string, error)

	// ClickAny clicks the first clickable element matching any of the
	// selectors, reporting whether anything was clicked.
	ClickAny(ctx context.Context, selectors []string) (bool, error)

	// SourceAttrs returns the named attribute of every element matching the
	// selector, in document order, skipping empty values.
	SourceAttrs(ctx context.Context, selector, attr string) ([]string, error)

	// ClickInFrames tries ClickAny inside each same-origin subframe.
	ClickInFrames(ctx context.Context, selectors []string) (bool, error)

	// TriggerDownload forces a download of the given URL into the browser's
	// configured download directory under the suggested filename.
	TriggerDownload(ctx context.Context, url, filename string) error
}

// Collector produces the ordered candidate list for a selector. Repeated
// calls with the same selector must return a stable superset so that
// deduplication against the store stays meaningful.
type Collector interface {
	Collect(ctx context.Context, sel domain.Selector, maxResults int) ([]domain.Candidate, error)
}

// Notifier is informed of terminal batch outcomes. Fire-and-forget;
// implementations must not block.
type Notifier interface {
	BatchFinished(task *domain.Task)
}
