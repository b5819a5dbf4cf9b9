// Package extract turns free-form input text into a list of short state
// phrases. The phrase source is pluggable; the default one is a
// deterministic sentence splitter standing in for a language model.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/hpungsan/stateintent/internal/errors"
)

// Source produces raw candidate phrases from text. Implementations may call
// out to a language-understanding backend and may fail.
type Source interface {
	States(ctx context.Context, text string) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, text string) ([]string, error)

// States implements Source.
func (f SourceFunc) States(ctx context.Context, text string) ([]string, error) {
	return f(ctx, text)
}

// Extractor validates input, delegates to a Source, and cleans the result.
type Extractor struct {
	source Source
}

// New returns an Extractor backed by source. A nil source means Splitter.
func New(source Source) *Extractor {
	if source == nil {
		source = Splitter{}
	}
	return &Extractor{source: source}
}

// Extract returns the trimmed, non-empty phrases found in text.
// Empty text fails with INVALID_INPUT before the source is called. Source
// failures and empty results fail with EXTRACTION_FAILED; the source's own
// error is kept as the cause but never becomes the message.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidInput("text must be a non-empty string")
	}

	raw, err := e.source.States(ctx, text)
	if err != nil {
		return nil, errors.NewExtractionFailed("failed to extract states from input text", err)
	}
	if raw == nil {
		return nil, errors.NewExtractionFailed("extractor returned no state list", nil)
	}

	states := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			states = append(states, s)
		}
	}
	if len(states) == 0 {
		return nil, errors.NewExtractionFailed("no state extracted", nil)
	}
	return states, nil
}

// splitPattern covers Japanese and ASCII sentence and clause punctuation plus
// line breaks.
var splitPattern = regexp.MustCompile(`[。\n.!?、,]+`)

// maxSegments caps how many phrases the Splitter returns.
const maxSegments = 3

// Splitter is the placeholder Source: it splits on punctuation and line
// breaks and keeps the first three segments.
type Splitter struct{}

// States implements Source.
func (Splitter) States(_ context.Context, text string) ([]string, error) {
	parts := splitPattern.Split(text, -1)
	states := make([]string, 0, maxSegments)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			states = append(states, p)
		}
		if len(states) == maxSegments {
			break
		}
	}
	if len(states) == 0 {
		return []string{strings.TrimSpace(text)}, nil
	}
	return states, nil
}
