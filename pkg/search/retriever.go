package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/discover"
)

// Retriever resolves a query to cached articles, populating the cache from
// discovery sources when nothing matches locally.
type Retriever struct {
	store      store.Store
	sources    []discover.Source
	maxResults int
	logger     *slog.Logger
}

// NewRetriever creates a retriever over the cache and discovery sources.
func NewRetriever(st store.Store, sources []discover.Source, maxResults int, logger *slog.Logger) *Retriever {
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:      st,
		sources:    sources,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Retrieve returns matching articles for the query. A cache hit
// short-circuits discovery. On discovery, every candidate passes through the
// cache upsert so concurrent identical queries resolve to the same rows.
// Discovery failures degrade (logged, next source tried); store failures are
// returned. The second return value carries raw diagnostic text when a
// discovery response could not be parsed at all.
func (r *Retriever) Retrieve(ctx context.Context, query string, keywords []string) ([]store.Article, string, error) {
	articles, err := r.store.SearchArticles(ctx, query, keywords, r.maxResults)
	if err != nil {
		return nil, "", fmt.Errorf("search cache: %w", err)
	}
	if len(articles) > 0 {
		return articles, "", nil
	}

	var (
		resolved []store.Article
		raw      string
		seen     = make(map[string]bool)
	)

	for _, src := range r.sources {
		batch, err := src.Discover(ctx, query, keywords)
		if err != nil {
			r.logger.Warn("discovery source failed", "source", src.Name(), "error", err)
			continue
		}
		if batch.Raw != "" && raw == "" {
			raw = batch.Raw
		}

		for _, c := range batch.Candidates {
			if c.Title == "" || c.Abstract == "" {
				r.logger.Warn("skipping incomplete candidate", "source", src.Name(), "title", c.Title)
				continue
			}
			candidate := c.Article()
			stored, err := r.store.UpsertArticle(ctx, &candidate)
			if err != nil {
				return nil, "", fmt.Errorf("cache candidate: %w", err)
			}
			if seen[stored.ID] {
				continue
			}
			seen[stored.ID] = true
			resolved = append(resolved, *stored)
			if len(resolved) >= r.maxResults {
				return resolved, "", nil
			}
		}
	}

	if len(resolved) > 0 {
		raw = ""
	}
	return resolved, raw, nil
}
