package acquire

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veranemoloko/paper-harvester/internal/watcher"
)

func TestClassify_TypedErrorsTakePrecedence(t *testing.T) {
	c := NewClassifier()

	denied := fmt.Errorf("strategy viewer-extract: %w", &DeniedError{DocID: "123", Reason: "access denied"})
	assert.Equal(t, DispositionPermanentDenied, c.Classify(denied))

	limited := fmt.Errorf("strategy viewer-extract: %w", &RateLimitedError{DocID: "123", Reason: "too many requests"})
	assert.Equal(t, DispositionRateLimited, c.Classify(limited))
}

func TestClassify_TextMatching(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text string
		want Disposition
	}{
		{"This document is outside of your subscription", DispositionPermanentDenied},
		{"you must Purchase the document to continue", DispositionPermanentDenied},
		{"Too many requests from your IP", DispositionRateLimited},
		{"your request has been blocked, please try again later", DispositionRateLimited},
		{"something completely different", DispositionUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(errors.New(tt.text)), "text: %s", tt.text)
	}
}

// The portal's denial page can also mention trying again later; the denial
// must win because its rules come first.
func TestClassify_DenialBeatsRateLimitWording(t *testing.T) {
	c := NewClassifier()
	err := errors.New("this document is outside of your subscription, please try again later")
	assert.Equal(t, DispositionPermanentDenied, c.Classify(err))
}

func TestClassify_TimeoutsAreTransient(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, DispositionTransient, c.Classify(fmt.Errorf("wrapped: %w", watcher.ErrTimeout)))
	assert.Equal(t, DispositionTransient, c.Classify(context.DeadlineExceeded))
}

func TestMatchPage(t *testing.T) {
	c := NewClassifier()

	d, phrase, ok := c.MatchPage("Sorry, this content is outside of your subscription agreement.")
	assert.True(t, ok)
	assert.Equal(t, DispositionPermanentDenied, d)
	assert.Equal(t, "outside of your subscription", phrase)

	_, _, ok = c.MatchPage("Abstract: we present a novel method")
	assert.False(t, ok)
}

func TestCustomRules(t *testing.T) {
	c := NewClassifier(Rule{Pattern: "quota exceeded", Disposition: DispositionRateLimited})

	assert.Equal(t, DispositionRateLimited, c.Classify(errors.New("daily quota exceeded")))
	// Custom rule set replaces the defaults entirely.
	assert.Equal(t, DispositionUnknown, c.Classify(errors.New("access denied")))
}
