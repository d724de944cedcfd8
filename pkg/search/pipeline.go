package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/keywords"
)

// ErrEmptyQuery is returned when the query is missing or blank.
var ErrEmptyQuery = errors.New("query is required")

// Result is the outcome of one pipeline run.
type Result struct {
	SearchID   string          `json:"searchId"`
	Articles   []store.Article `json:"articles"`
	AISummary  string          `json:"aiSummary,omitempty"`
	Keywords   []string        `json:"keywords"`
	RawContent string          `json:"rawContent,omitempty"`
}

// Pipeline runs the full query flow: extract keywords, retrieve articles,
// synthesize a summary, record the search.
type Pipeline struct {
	store      store.Store
	extractor  *keywords.Extractor
	retriever  *Retriever
	summarizer *Summarizer
	logger     *slog.Logger
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(st store.Store, extractor *keywords.Extractor, retriever *Retriever, summarizer *Summarizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      st,
		extractor:  extractor,
		retriever:  retriever,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Run processes one query for the given user. External-capability failures
// degrade (fallback keywords, empty summary, empty article set with raw
// diagnostic text); store failures are fatal to the request.
func (p *Pipeline) Run(ctx context.Context, userID, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	kws := p.extractor.Extract(ctx, query)

	articles, raw, err := p.retriever.Retrieve(ctx, query, kws)
	if err != nil {
		return nil, fmt.Errorf("retrieve articles: %w", err)
	}

	summary := p.summarizer.Summarize(ctx, articles)

	search := store.Search{
		UserID:    userID,
		Query:     query,
		AISummary: summary,
	}
	articleIDs := make([]string, len(articles))
	for i, a := range articles {
		articleIDs[i] = a.ID
	}
	if err := p.store.CreateSearch(ctx, &search, articleIDs); err != nil {
		return nil, fmt.Errorf("record search: %w", err)
	}

	p.logger.Info("search completed",
		"user", userID,
		"articles", len(articles),
		"keywords", len(kws),
		"summarized", summary != "")

	return &Result{
		SearchID:   search.ID,
		Articles:   articles,
		AISummary:  summary,
		Keywords:   kws,
		RawContent: raw,
	}, nil
}
