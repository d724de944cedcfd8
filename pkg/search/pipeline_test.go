package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/discover"
	"github.com/elonfeng/medsearch/pkg/keywords"
	"github.com/elonfeng/medsearch/pkg/llm"
)

type stubCompleter struct {
	text  string
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubSource struct {
	batch discover.Batch
	err   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Discover(ctx context.Context, query string, kws []string) (discover.Batch, error) {
	return s.batch, s.err
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPipeline(st store.Store, completer llm.Completer, sources ...discover.Source) *Pipeline {
	extractor := keywords.NewExtractor(completer, "gpt-4", 0.3, nil)
	retriever := NewRetriever(st, sources, 10, nil)
	summarizer := NewSummarizer(completer, "gpt-4-turbo-preview", 0.3, 800, nil)
	return NewPipeline(st, extractor, retriever, summarizer, nil)
}

func TestRunEmptyQuery(t *testing.T) {
	p := newPipeline(newTestStore(t), nil)
	_, err := p.Run(context.Background(), "user-1", "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRunCacheHit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertArticle(ctx, &store.Article{
		Title:    "Recent Advances in mRNA Vaccine Technology",
		Abstract: "This review examines mRNA platforms.",
		Keywords: []string{"mRNA", "vaccines"},
	})
	require.NoError(t, err)

	// Completer fails, so keywords come from the local fallback and the
	// summary is empty. The search itself still succeeds.
	completer := &stubCompleter{err: errors.New("service unavailable")}
	p := newPipeline(st, completer)

	res, err := p.Run(ctx, "user-1", "mRNA vaccine research")
	require.NoError(t, err)
	require.Len(t, res.Articles, 1)
	assert.NotEmpty(t, res.SearchID)
	assert.Empty(t, res.AISummary)
	assert.Empty(t, res.RawContent)
	assert.Contains(t, res.Keywords, "mrna")

	// The run is recorded in history.
	history, err := st.ListSearches(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "mRNA vaccine research", history[0].Query)
	require.Len(t, history[0].Articles, 1)
}

func TestRunDiscoveryPath(t *testing.T) {
	st := newTestStore(t)
	src := &stubSource{batch: discover.Batch{Candidates: []discover.Candidate{
		{Title: "CFTR Modulators in Practice", Abstract: "A review.", PublishDate: "2024-05-01"},
		{Title: "cftr modulators in practice", Abstract: "Duplicate of the first."},
		{Title: "Gene Therapy Outlook", Abstract: "Outlook piece."},
	}}}

	p := newPipeline(st, nil, src)
	res, err := p.Run(context.Background(), "user-1", "cystic fibrosis CFTR")
	require.NoError(t, err)

	// The duplicate title resolves to the same cached row.
	require.Len(t, res.Articles, 2)
	assert.Equal(t, "CFTR Modulators in Practice", res.Articles[0].Title)
	assert.Empty(t, res.RawContent)

	count := 0
	for _, a := range res.Articles {
		if a.ID != "" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestRunSurfacesRawContent(t *testing.T) {
	st := newTestStore(t)
	src := &stubSource{batch: discover.Batch{Raw: "I could not find any matching articles."}}

	p := newPipeline(st, nil, src)
	res, err := p.Run(context.Background(), "user-1", "extremely obscure topic")
	require.NoError(t, err)
	assert.Empty(t, res.Articles)
	assert.Equal(t, "I could not find any matching articles.", res.RawContent)
	assert.NotEmpty(t, res.SearchID)
}

func TestRunDiscoverySourceFailureDegrades(t *testing.T) {
	st := newTestStore(t)
	failing := &stubSource{err: errors.New("feed down")}
	working := &stubSource{batch: discover.Batch{Candidates: []discover.Candidate{
		{Title: "Gene Therapy Outlook", Abstract: "Outlook piece."},
	}}}

	p := newPipeline(st, nil, failing, working)
	res, err := p.Run(context.Background(), "user-1", "gene therapy")
	require.NoError(t, err)
	require.Len(t, res.Articles, 1)
}

func TestRetrieveCacheHitSkipsDiscovery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertArticle(ctx, &store.Article{Title: "Cached Article", Abstract: "about oncology trials"})
	require.NoError(t, err)

	src := &stubSource{err: errors.New("should not be called")}
	r := NewRetriever(st, []discover.Source{src}, 10, nil)

	got, raw, err := r.Retrieve(ctx, "oncology trials", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, raw)
}

func TestSummarize(t *testing.T) {
	article := store.Article{Title: "T", Abstract: "A"}

	t.Run("empty set returns empty without a call", func(t *testing.T) {
		completer := &stubCompleter{text: "digest"}
		s := NewSummarizer(completer, "m", 0.3, 800, nil)
		assert.Empty(t, s.Summarize(context.Background(), nil))
		assert.Zero(t, completer.calls)
	})

	t.Run("nil completer returns empty", func(t *testing.T) {
		s := NewSummarizer(nil, "m", 0.3, 800, nil)
		assert.Empty(t, s.Summarize(context.Background(), []store.Article{article}))
	})

	t.Run("inference error degrades to empty", func(t *testing.T) {
		s := NewSummarizer(&stubCompleter{err: errors.New("timeout")}, "m", 0.3, 800, nil)
		assert.Empty(t, s.Summarize(context.Background(), []store.Article{article}))
	})

	t.Run("success trims whitespace", func(t *testing.T) {
		s := NewSummarizer(&stubCompleter{text: "  the digest \n"}, "m", 0.3, 800, nil)
		assert.Equal(t, "the digest", s.Summarize(context.Background(), []store.Article{article}))
	})
}

func TestSummaryPromptIncludesArticles(t *testing.T) {
	var captured llm.Request
	completer := completerFunc(func(ctx context.Context, req llm.Request) (string, error) {
		captured = req
		return "ok", nil
	})

	s := NewSummarizer(completer, "m", 0.3, 800, nil)
	s.Summarize(context.Background(), []store.Article{
		{Title: "First Study", Abstract: "First abstract."},
		{Title: "Second Study", Abstract: "Second abstract."},
	})

	assert.True(t, strings.Contains(captured.Prompt, "Title: First Study"))
	assert.True(t, strings.Contains(captured.Prompt, "Abstract: Second abstract."))
	assert.Equal(t, 800, captured.MaxTokens)
}

type completerFunc func(ctx context.Context, req llm.Request) (string, error)

func (f completerFunc) Complete(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}
