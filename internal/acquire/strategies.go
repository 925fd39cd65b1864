package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/veranemoloko/paper-harvester/internal/source"
)

// StrategyConfig carries the portal-specific knobs of the default
// strategies; %s in the templates is the document number.
type StrategyConfig struct {
	DirectPDFTemplate string
	ViewerTemplate    string
}

var downloadButtonSelectors = []string{
	"a.pdf-btn",
	"button.pdf-btn",
	"[data-action='download-pdf']",
	"a[class*='pdf']",
	"button[class*='pdf']",
}

var embeddedSourceSelectors = []string{
	"iframe[src*='pdf']",
	"iframe[src*='getPDF']",
	"embed[type='application/pdf']",
	"embed[src*='pdf']",
	"a[href*='.pdf']",
	"a[href*='getPDF']",
}

// DefaultStrategies returns the standard ordered fallback chain: direct
// resource link, embedded-viewer extraction, interactive trigger,
// nested-context trigger.
func DefaultStrategies(browser source.Browser, classifier *Classifier, cfg StrategyConfig) []Strategy {
	return []Strategy{
		&directLink{browser: browser, template: cfg.DirectPDFTemplate},
		&viewerExtract{browser: browser, classifier: classifier, template: cfg.ViewerTemplate},
		&clickTrigger{browser: browser},
		&frameTrigger{browser: browser},
	}
}

// directLink navigates straight to the document's PDF endpoint. When the
// browser renders the PDF inline instead of downloading, it forces a
// download of the current location.
type directLink struct {
	browser  source.Browser
	template string
}

func (s *directLink) Name() string { return "direct-link" }

func (s *directLink) Attempt(ctx context.Context, docID string) error {
	target := fmt.Sprintf(s.template, docID)
	if err := s.browser.Navigate(ctx, target); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	current, err := s.browser.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("current url: %w", err)
	}
	if looksInlinePDF(current) {
		if err := s.browser.TriggerDownload(ctx, current, docID+".pdf"); err != nil {
			return fmt.Errorf("trigger download: %w", err)
		}
	}
	return nil
}

// viewerExtract loads the document viewer page, proactively checks the page
// text for denial or rate-limit wording, then pulls the PDF source out of
// the embedded viewer and forces its download.
type viewerExtract struct {
	browser    source.Browser
	classifier *Classifier
	template   string
}

func (s *viewerExtract) Name() string { return "viewer-extract" }

func (s *viewerExtract) Attempt(ctx context.Context, docID string) error {
	if err := s.browser.Navigate(ctx, fmt.Sprintf(s.template, docID)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	text, err := s.browser.PageText(ctx)
	if err != nil {
		return fmt.Errorf("page text: %w", err)
	}
	switch d, phrase, ok := s.classifier.MatchPage(text); {
	case ok && d == DispositionPermanentDenied:
		return &DeniedError{DocID: docID, Reason: phrase}
	case ok && d == DispositionRateLimited:
		return &RateLimitedError{DocID: docID, Reason: phrase}
	}

	src, found, err := s.findEmbeddedSource(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := s.browser.TriggerDownload(ctx, src, docID+".pdf"); err != nil {
		return fmt.Errorf("trigger download: %w", err)
	}
	return nil
}

func (s *viewerExtract) findEmbeddedSource(ctx context.Context) (string, bool, error) {
	for _, sel := range embeddedSourceSelectors {
		attr := "src"
		if strings.HasPrefix(sel, "a[") {
			attr = "href"
		}
		values, err := s.browser.SourceAttrs(ctx, sel, attr)
		if err != nil {
			return "", false, fmt.Errorf("scan %s: %w", sel, err)
		}
		for _, v := range values {
			if v != "" {
				return v, true, nil
			}
		}
	}
	return "", false, nil
}

// clickTrigger clicks whatever download control the current page offers.
type clickTrigger struct {
	browser source.Browser
}

func (s *clickTrigger) Name() string { return "click-trigger" }

func (s *clickTrigger) Attempt(ctx context.Context, docID string) error {
	if _, err := s.browser.ClickAny(ctx, downloadButtonSelectors); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// frameTrigger repeats the click attempt inside the viewer's subframes,
// where some portals render the actual download control.
type frameTrigger struct {
	browser source.Browser
}

func (s *frameTrigger) Name() string { return "frame-trigger" }

func (s *frameTrigger) Attempt(ctx context.Context, docID string) error {
	if _, err := s.browser.ClickInFrames(ctx, downloadButtonSelectors); err != nil {
		return fmt.Errorf("click in frames: %w", err)
	}
	return nil
}

func looksInlinePDF(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "getpdf") ||
		strings.Contains(lower, "ielx") ||
		strings.HasSuffix(lower, ".pdf")
}
