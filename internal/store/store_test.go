package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	// One connection keeps the concurrent tests deterministic: contention
	// resolves in the pool instead of as SQLITE_BUSY.
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "recent advances in mrna vaccine technology",
		NormalizeTitle("  Recent   Advances in\tmRNA Vaccine Technology "))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestUpsertArticleIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Article{
		Title:       "Recent Advances in mRNA Vaccine Technology",
		Abstract:    "A review of mRNA platforms.",
		Authors:     []string{"Smith, J."},
		Keywords:    []string{"mRNA", "vaccines"},
		PublishDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Source:      "Journal of Immunology Research",
	}
	stored, err := s.UpsertArticle(ctx, first)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	// Same title up to case and whitespace: existing row wins, candidate
	// fields are discarded.
	dup := &Article{
		Title:    "  recent ADVANCES in   mRNA vaccine technology ",
		Abstract: "A completely different abstract.",
		Source:   "Other Journal",
	}
	stored2, err := s.UpsertArticle(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, stored2.ID)
	assert.Equal(t, "A review of mRNA platforms.", stored2.Abstract)
	assert.Equal(t, "Journal of Immunology Research", stored2.Source)
	assert.Equal(t, []string{"mRNA", "vaccines"}, stored2.Keywords)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM articles"))
	assert.Equal(t, 1, count)
}

func TestUpsertArticleEmptyTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertArticle(context.Background(), &Article{Title: "   "})
	assert.Error(t, err)
}

func TestUpsertArticleConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 8)
	var g errgroup.Group
	for i := 0; i < len(ids); i++ {
		i := i
		g.Go(func() error {
			a := &Article{
				Title:    "Novel Treatments for Alzheimer's Disease",
				Abstract: fmt.Sprintf("candidate %d", i),
			}
			stored, err := s.UpsertArticle(ctx, a)
			if err != nil {
				return err
			}
			ids[i] = stored.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM articles"))
	assert.Equal(t, 1, count)
}

func TestSearchArticles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := func(title, abstract string, keywords []string, published time.Time) *Article {
		a := &Article{Title: title, Abstract: abstract, Keywords: keywords, PublishDate: published}
		stored, err := s.UpsertArticle(ctx, a)
		require.NoError(t, err)
		return stored
	}

	old := insert("Cystic Fibrosis Gene Therapy", "CFTR modulator study.", []string{"cystic fibrosis"}, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	recent := insert("Advances in Pulmonology", "Mentions cystic fibrosis outcomes.", []string{"pulmonology"}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	insert("Cardiology Update", "Stents and statins.", []string{"cardiology"}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	t.Run("substring match on title and abstract, newest first", func(t *testing.T) {
		got, err := s.SearchArticles(ctx, "cystic fibrosis", nil, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, recent.ID, got[0].ID)
		assert.Equal(t, old.ID, got[1].ID)
	})

	t.Run("keyword match", func(t *testing.T) {
		got, err := s.SearchArticles(ctx, "heart problems", []string{"cardiology"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Cardiology Update", got[0].Title)
	})

	t.Run("limit applies", func(t *testing.T) {
		got, err := s.SearchArticles(ctx, "cystic fibrosis", nil, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, recent.ID, got[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := s.SearchArticles(ctx, "xenotransplantation", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestCreateAndListSearches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	article, err := s.UpsertArticle(ctx, &Article{Title: "Some Article", Abstract: "x"})
	require.NoError(t, err)

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		search := &Search{
			UserID:    "user-1",
			Query:     fmt.Sprintf("query %d", i),
			AISummary: "summary",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateSearch(ctx, search, []string{article.ID}))
	}
	require.NoError(t, s.CreateSearch(ctx, &Search{UserID: "user-2", Query: "other"}, nil))

	got, err := s.ListSearches(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "query 4", got[0].Query)
	assert.Equal(t, "query 3", got[1].Query)
	assert.Equal(t, "query 2", got[2].Query)
	require.Len(t, got[0].Articles, 1)
	assert.Equal(t, article.ID, got[0].Articles[0].ID)

	other, err := s.ListSearches(ctx, "user-2", 3)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].Articles)
	assert.Empty(t, other[0].AISummary)
}

func seedAd(t *testing.T, s *SQLiteStore, id, advertiserID string) {
	t.Helper()
	require.NoError(t, s.CreateAd(context.Background(), &Ad{
		ID:           id,
		Title:        "Ad " + id,
		Keywords:     []string{"medicine"},
		IsActive:     true,
		Budget:       100,
		AdvertiserID: advertiserID,
	}))
}

func TestListActiveAdsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateAd(ctx, &Ad{ID: "ad-low", Title: "low", IsActive: true, Budget: 10, AdvertiserID: "a", Priority: 0, CreatedAt: base}))
	require.NoError(t, s.CreateAd(ctx, &Ad{ID: "ad-high", Title: "high", IsActive: true, Budget: 10, AdvertiserID: "a", Priority: 5, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.CreateAd(ctx, &Ad{ID: "ad-mid", Title: "mid", IsActive: true, Budget: 10, AdvertiserID: "a", Priority: 5, CreatedAt: base}))
	require.NoError(t, s.CreateAd(ctx, &Ad{ID: "ad-inactive", Title: "off", IsActive: false, Budget: 10, AdvertiserID: "a"}))
	require.NoError(t, s.CreateAd(ctx, &Ad{ID: "ad-broke", Title: "broke", IsActive: true, Budget: 0, AdvertiserID: "a"}))

	got, err := s.ListActiveAds(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ad-mid", got[0].ID)
	assert.Equal(t, "ad-high", got[1].ID)
	assert.Equal(t, "ad-low", got[2].ID)
}

func TestCreateImpressionsDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAd(t, s, "ad-1", "adv-1")
	seedAd(t, s, "ad-2", "adv-1")

	first, err := s.CreateImpressions(ctx, "search-1", []string{"ad-1", "ad-2"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.False(t, first[0].Clicked)

	// Re-matching the same search must reuse the existing rows.
	second, err := s.CreateImpressions(ctx, "search-1", []string{"ad-1", "ad-2"})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM ad_impressions"))
	assert.Equal(t, 2, count)
}

func TestRecordClick(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAd(t, s, "ad-1", "adv-1")

	imps, err := s.CreateImpressions(ctx, "search-1", []string{"ad-1"})
	require.NoError(t, err)
	imp := imps[0]

	adClicks := func() int64 {
		var n int64
		require.NoError(t, s.db.Get(&n, "SELECT clicks FROM ads WHERE id = 'ad-1'"))
		return n
	}

	t.Run("first click flips flag and increments counter", func(t *testing.T) {
		require.NoError(t, s.RecordClick(ctx, imp.ID, "ad-1"))
		got, err := s.GetImpression(ctx, imp.ID)
		require.NoError(t, err)
		assert.True(t, got.Clicked)
		assert.Equal(t, int64(1), adClicks())
	})

	t.Run("second click is a no-op", func(t *testing.T) {
		require.NoError(t, s.RecordClick(ctx, imp.ID, "ad-1"))
		assert.Equal(t, int64(1), adClicks())
	})

	t.Run("unknown impression", func(t *testing.T) {
		err := s.RecordClick(ctx, "nope", "ad-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mismatched ad", func(t *testing.T) {
		err := s.RecordClick(ctx, imp.ID, "ad-other")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(1), adClicks())
	})
}

func TestRecordClickConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAd(t, s, "ad-1", "adv-1")

	imps, err := s.CreateImpressions(ctx, "search-1", []string{"ad-1"})
	require.NoError(t, err)
	impID := imps[0].ID

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return s.RecordClick(ctx, impID, "ad-1")
		})
	}
	require.NoError(t, g.Wait())

	var clicks int64
	require.NoError(t, s.db.Get(&clicks, "SELECT clicks FROM ads WHERE id = 'ad-1'"))
	assert.Equal(t, int64(1), clicks)
}

func TestCountImpressionsByDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAd(t, s, "ad-1", "adv-1")
	seedAd(t, s, "ad-2", "adv-2")

	// Backdate impressions across a 10-day span.
	now := time.Now().UTC()
	backdate := func(id, adID string, daysAgo int) {
		_, err := s.db.Exec(`
			INSERT INTO ad_impressions (id, ad_id, search_id, clicked, created_at)
			VALUES (?, ?, ?, 0, ?)
		`, id, adID, "search-"+id, now.AddDate(0, 0, -daysAgo))
		require.NoError(t, err)
	}
	backdate("i1", "ad-1", 9)
	backdate("i2", "ad-1", 8)
	backdate("i3", "ad-1", 2)
	backdate("i4", "ad-1", 2)
	backdate("i5", "ad-2", 1)

	since := now.AddDate(0, 0, -7)

	t.Run("window excludes older impressions", func(t *testing.T) {
		buckets, err := s.CountImpressionsByDay(ctx, "", since)
		require.NoError(t, err)
		require.Len(t, buckets, 2)

		total := 0
		for _, b := range buckets {
			total += b.Count
		}
		assert.Equal(t, 3, total)
		assert.Equal(t, now.AddDate(0, 0, -2).Format("2006-01-02"), buckets[0].Day)
		assert.Equal(t, 2, buckets[0].Count)
		assert.Equal(t, now.AddDate(0, 0, -1).Format("2006-01-02"), buckets[1].Day)
		assert.Equal(t, 1, buckets[1].Count)
	})

	t.Run("advertiser filter", func(t *testing.T) {
		buckets, err := s.CountImpressionsByDay(ctx, "adv-2", since)
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		assert.Equal(t, 1, buckets[0].Count)
	})

	t.Run("no impressions in window", func(t *testing.T) {
		buckets, err := s.CountImpressionsByDay(ctx, "adv-1", now.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, buckets)
	})
}
