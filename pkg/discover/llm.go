package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/medsearch/pkg/llm"
)

const discoverPrompt = `You are a medical literature assistant. Find up to %d published research articles relevant to this query: %q

Relevant topics: %s

Respond with a JSON array. Each element must have: "title" (string), "abstract" (string, 2-4 sentences), "authors" (array of strings), "keywords" (array of strings), "publishDate" (YYYY-MM-DD), "source" (journal name), "url" (string, may be empty).

Return ONLY the JSON array, no other text.`

// LLM discovers candidate articles through the inference capability.
type LLM struct {
	completer   llm.Completer
	model       string
	temperature float64
	maxResults  int
	logger      *slog.Logger
}

// NewLLM creates an LLM-backed discovery source.
func NewLLM(completer llm.Completer, model string, temperature float64, maxResults int, logger *slog.Logger) *LLM {
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		completer:   completer,
		model:       model,
		temperature: temperature,
		maxResults:  maxResults,
		logger:      logger,
	}
}

func (l *LLM) Name() string { return "llm" }

// Discover asks the model for article candidates. A response that cannot be
// parsed as a whole is not an error: the raw text is returned in the batch
// for the caller to surface. Individual malformed items are logged and
// skipped.
func (l *LLM) Discover(ctx context.Context, query string, keywords []string) (Batch, error) {
	prompt := fmt.Sprintf(discoverPrompt, l.maxResults, query, strings.Join(keywords, ", "))

	text, err := l.completer.Complete(ctx, llm.Request{
		Model:       l.model,
		Prompt:      prompt,
		Temperature: l.temperature,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("llm discovery: %w", err)
	}

	text = llm.StripCodeFence(text)

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		l.logger.Warn("discovery response is not a JSON array", "error", err)
		return Batch{Raw: text}, nil
	}

	var candidates []Candidate
	for i, item := range raw {
		var c Candidate
		if err := json.Unmarshal(item, &c); err != nil {
			l.logger.Warn("skipping malformed discovery item", "index", i, "error", err, "item", truncate(string(item), 200))
			continue
		}
		if c.Title == "" || c.Abstract == "" {
			l.logger.Warn("skipping discovery item without title or abstract", "index", i, "item", truncate(string(item), 200))
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) >= l.maxResults {
			break
		}
	}
	return Batch{Candidates: candidates}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
