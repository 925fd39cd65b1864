package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// callTimeout bounds every individual browser call; slow portals are handled
// by the acquisition engine's own waiting, not by hanging inside CDP.
const callTimeout = 30 * time.Second

// Session is a chromedp-backed Browser that attaches to an already running
// browser over its remote debugging port. The browser is expected to carry a
// logged-in portal session; this process never handles credentials.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Attach connects to the browser at debugAddr (host:port of
// --remote-debugging-port) and routes its downloads into downloadDir.
func Attach(parent context.Context, debugAddr, downloadDir string, logger *slog.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(parent, "ws://"+debugAddr)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		ctxCancel()
		allocCancel()
	}

	err := chromedp.Run(ctx,
		browser.
			SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("attach to browser at %s: %w", debugAddr, err)
	}

	logger.Info("attached to browser", "address", debugAddr, "download_dir", downloadDir)
	return &Session{ctx: ctx, cancel: cancel, logger: logger}, nil
}

// Close detaches from the browser without closing it.
func (s *Session) Close() {
	s.cancel()
}

// run executes chromedp actions against the session tab, bounded by
// callTimeout and abandoned early if the caller's ctx is cancelled.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	callCtx, cancel := context.WithTimeout(s.ctx, callTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(callCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate opens url and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// PageText returns the rendered text of the page body.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

// ClickAny clicks the first visible element matching any selector.
func (s *Session) ClickAny(ctx context.Context, selectors []string) (bool, error) {
	var clicked bool
	err := s.run(ctx, chromedp.Evaluate(clickScript(selectors, "document"), &clicked))
	if err != nil {
		return false, fmt.Errorf("click: %w", err)
	}
	return clicked, nil
}

// ClickInFrames repeats the click attempt inside each same-origin iframe.
// Cross-origin frames are silently skipped; CDP cannot script them from here.
func (s *Session) ClickInFrames(ctx context.Context, selectors []string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		for (const frame of document.querySelectorAll("iframe")) {
			let doc;
			try { doc = frame.contentDocument; } catch (e) { continue; }
			if (!doc) continue;
			if (%s(doc)) return true;
		}
		return false;
	})()`, clickFn(selectors))

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, fmt.Errorf("click in frames: %w", err)
	}
	return clicked, nil
}

// SourceAttrs returns the named attribute of every matching element.
func (s *Session) SourceAttrs(ctx context.Context, selector, attr string) ([]string, error) {
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%q))
		.map(el => el.getAttribute(%q) || "")
		.filter(v => v !== "")`, selector, attr)

	var values []string
	if err := s.run(ctx, chromedp.Evaluate(script, &values)); err != nil {
		return nil, fmt.Errorf("collect %s attributes: %w", attr, err)
	}
	return values, nil
}

// TriggerDownload forces a download of url by injecting a temporary anchor
// with a download attribute. The click happens with the portal's cookies, so
// authenticated resources work.
func (s *Session) TriggerDownload(ctx context.Context, url, filename string) error {
	script := fmt.Sprintf(`(() => {
		const a = document.createElement("a");
		a.href = %q;
		a.download = %q;
		document.body.appendChild(a);
		a.click();
		a.remove();
		return true;
	})()`, url, filename)

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("trigger download of %s: %w", url, err)
	}
	return nil
}

// evaluate runs a script against the current page and decodes its result.
func (s *Session) evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

// clickFn builds a JS function that clicks the first visible match of any
// selector within a given document and reports success.
func clickFn(selectors []string) string {
	return fmt.Sprintf(`((doc) => {
		for (const sel of %s) {
			const el = doc.querySelector(sel);
			if (el && el.offsetParent !== null) {
				el.click();
				return true;
			}
		}
		return false;
	})`, jsStringArray(selectors))
}

func clickScript(selectors []string, doc string) string {
	return fmt.Sprintf("%s(%s)", clickFn(selectors), doc)
}

func jsStringArray(items []string) string {
	out := "["
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", item)
	}
	return out + "]"
}
