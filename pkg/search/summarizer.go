package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/llm"
)

const summaryPrompt = `Analyze and summarize these medical research findings:

%s

Please provide a comprehensive yet digestible summary that:
1. Highlights the key findings from each study
2. Identifies common themes or patterns across the studies
3. Explains the practical implications for medical practice
4. Uses clear, accessible language while maintaining scientific accuracy
5. Organizes the information in a logical flow

Keep the summary focused on the most important insights that would be valuable for medical professionals.`

// Summarizer produces a natural-language digest of an article set.
type Summarizer struct {
	completer   llm.Completer // nil disables summarization
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewSummarizer creates a summarizer. completer may be nil.
func NewSummarizer(completer llm.Completer, model string, temperature float64, maxTokens int, logger *slog.Logger) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 800
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		completer:   completer,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// Summarize returns a digest of the articles, or "" for an empty set.
// Inference failures degrade to "" rather than failing the caller.
func (s *Summarizer) Summarize(ctx context.Context, articles []store.Article) string {
	if len(articles) == 0 || s.completer == nil {
		return ""
	}

	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Title: %s\nAbstract: %s", a.Title, a.Abstract)
	}

	text, err := s.completer.Complete(ctx, llm.Request{
		Model:       s.model,
		Prompt:      fmt.Sprintf(summaryPrompt, b.String()),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		s.logger.Warn("summary generation degraded to empty", "error", err, "articles", len(articles))
		return ""
	}
	return strings.TrimSpace(text)
}
