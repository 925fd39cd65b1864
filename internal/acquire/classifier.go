package acquire

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/veranemoloko/paper-harvester/internal/watcher"
)

// Rule maps a lowercase substring of page text or error text to a
// disposition. Rules are evaluated in order; the first match wins, so denial
// phrasing must come before rate-limit phrasing (the portal reuses the same
// URL shape for both).
type Rule struct {
	Pattern     string
	Disposition Disposition
}

// DefaultRules matches the portal's current wording for subscription denial
// and temporary blocking.
func DefaultRules() []Rule {
	return []Rule{
		{"outside of your subscription", DispositionPermanentDenied},
		{"outside your subscription", DispositionPermanentDenied},
		{"this document is outside", DispositionPermanentDenied},
		{"purchase the document", DispositionPermanentDenied},
		{"access to this document requires", DispositionPermanentDenied},
		{"not authorized", DispositionPermanentDenied},
		{"access denied", DispositionPermanentDenied},

		{"too many requests", DispositionRateLimited},
		{"rate limit", DispositionRateLimited},
		{"temporarily blocked", DispositionRateLimited},
		{"request has been blocked", DispositionRateLimited},
		{"please try again later", DispositionRateLimited},
	}
}

// Classifier resolves raw failures into dispositions using a table-driven
// rule set, so the rules can be unit-tested and extended without touching
// the orchestrator.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier; with no rules it uses DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify maps an acquisition error to a disposition. Typed errors raised
// by the strategies take precedence; everything else is matched against the
// rule table by message content, then falls back to transport heuristics.
func (c *Classifier) Classify(err error) Disposition {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return DispositionPermanentDenied
	}
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return DispositionRateLimited
	}

	if d, ok := c.matchText(err.Error()); ok {
		return d
	}

	if errors.Is(err, watcher.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return DispositionTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return DispositionTransient
	}

	return DispositionUnknown
}

// MatchPage inspects rendered page text and reports a proactive disposition
// with the phrase that matched. Used by strategies to short-circuit before
// waiting on a download that will never start.
func (c *Classifier) MatchPage(text string) (Disposition, string, bool) {
	if d, phrase, ok := c.match(text); ok {
		return d, phrase, true
	}
	return DispositionUnknown, "", false
}

func (c *Classifier) matchText(text string) (Disposition, bool) {
	d, _, ok := c.match(text)
	return d, ok
}

func (c *Classifier) match(text string) (Disposition, string, bool) {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if strings.Contains(lower, r.Pattern) {
			return r.Disposition, r.Pattern, true
		}
	}
	return DispositionUnknown, "", false
}
