package keywords

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kljensen/snowball"

	"github.com/elonfeng/medsearch/pkg/llm"
)

const extractSystemPrompt = "Extract medical keywords as comma-separated list."

// maxTermLen rejects comma-split fragments of prose the model returned
// instead of a keyword list.
const maxTermLen = 64

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "i": true, "we": true, "you": true,
	"how": true, "what": true, "when": true, "where": true, "why": true,
	"not": true, "no": true, "about": true, "can": true,
	"all": true, "more": true, "also": true, "than": true, "very": true,
}

// Extractor derives topical keywords from a raw query, preferring the
// inference capability and degrading to a local heuristic.
type Extractor struct {
	completer   llm.Completer // nil means fallback only
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewExtractor creates an extractor. completer may be nil to force the
// local fallback.
func NewExtractor(completer llm.Completer, model string, temperature float64, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer:   completer,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Extract returns a normalized keyword set for the query. It never fails:
// inference errors, malformed responses, and empty results all degrade to
// Fallback.
func (e *Extractor) Extract(ctx context.Context, query string) []string {
	if e.completer != nil {
		text, err := e.completer.Complete(ctx, llm.Request{
			Model:       e.model,
			System:      extractSystemPrompt,
			Prompt:      query,
			Temperature: e.temperature,
		})
		if err != nil {
			e.logger.Warn("keyword extraction degraded to fallback", "error", err)
		} else if kws := splitKeywordList(text); len(kws) > 0 {
			return kws
		} else {
			e.logger.Warn("keyword extraction returned no usable terms", "response_len", len(text))
		}
	}
	return Fallback(query)
}

// splitKeywordList parses a comma-separated keyword response. Returns nil if
// the response does not look like a keyword list.
func splitKeywordList(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(text, ",") {
		term := strings.ToLower(strings.TrimSpace(part))
		term = strings.Trim(term, ".")
		if term == "" {
			continue
		}
		if len(term) > maxTermLen || strings.ContainsAny(term, "\n:") {
			return nil
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}

// Fallback is the deterministic local extraction: lowercase, split on
// whitespace, drop stopwords, de-duplicate by stem so plural and singular
// forms collapse to one term.
func Fallback(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) < 2 || stopwords[word] {
			continue
		}
		key := stem(word)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, word)
	}
	return out
}

func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stemmed
}
