package ads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/medsearch/internal/store"
)

// Matcher selects sponsored ads by keyword relevance.
type Matcher struct {
	store            store.Store
	maxMatches       int
	fallbackCategory string
	logger           *slog.Logger
}

// NewMatcher creates a matcher. fallbackCategory may be empty to disable the
// generic-ad fallback.
func NewMatcher(st store.Store, maxMatches int, fallbackCategory string, logger *slog.Logger) *Matcher {
	if maxMatches <= 0 {
		maxMatches = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:            st,
		maxMatches:       maxMatches,
		fallbackCategory: fallbackCategory,
		logger:           logger,
	}
}

// Match returns up to maxMatches active, funded ads whose keyword set
// overlaps the query keywords. With no overlap it falls back to the
// configured generic category; with neither it returns nothing. Ordering is
// inherited from the store listing (priority, then insertion order), never
// randomized.
func (m *Matcher) Match(ctx context.Context, queryKeywords []string) ([]store.Ad, error) {
	candidates, err := m.store.ListActiveAds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active ads: %w", err)
	}

	var matched []store.Ad
	for _, ad := range candidates {
		if Overlaps(ad.Keywords, queryKeywords) {
			matched = append(matched, ad)
			if len(matched) >= m.maxMatches {
				break
			}
		}
	}

	if len(matched) > 0 || m.fallbackCategory == "" {
		return matched, nil
	}

	fallback, err := m.store.ListAdsByCategory(ctx, m.fallbackCategory)
	if err != nil {
		return nil, fmt.Errorf("list fallback ads: %w", err)
	}
	if len(fallback) > m.maxMatches {
		fallback = fallback[:m.maxMatches]
	}
	if len(fallback) > 0 {
		m.logger.Debug("ad match fell back to category", "category", m.fallbackCategory, "ads", len(fallback))
	}
	return fallback, nil
}

// Overlaps reports whether any ad keyword and any query keyword contain each
// other, case-insensitively. Containment runs in both directions so the query
// keyword "cystic fibrosis treatment" matches the ad tag "cystic fibrosis".
func Overlaps(adKeywords, queryKeywords []string) bool {
	for _, ak := range adKeywords {
		ak = strings.ToLower(strings.TrimSpace(ak))
		if ak == "" {
			continue
		}
		for _, qk := range queryKeywords {
			qk = strings.ToLower(strings.TrimSpace(qk))
			if qk == "" {
				continue
			}
			if strings.Contains(ak, qk) || strings.Contains(qk, ak) {
				return true
			}
		}
	}
	return false
}
