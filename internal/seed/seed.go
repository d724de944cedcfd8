package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/medsearch/internal/store"
)

// Articles returns the sample reference articles.
func Articles() []store.Article {
	return []store.Article{
		{
			Title:       "Recent Advances in mRNA Vaccine Technology",
			Abstract:    "This comprehensive review examines the latest developments in mRNA vaccine technology, highlighting their role in combating infectious diseases and potential applications in cancer immunotherapy.",
			Authors:     []string{"Smith, J.", "Johnson, M.", "Williams, R."},
			Keywords:    []string{"mRNA", "vaccines", "immunology", "biotechnology"},
			PublishDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Source:      "Journal of Immunology Research",
			URL:         "https://example.com/mrna-vaccine-advances",
		},
		{
			Title:       "Artificial Intelligence in Medical Diagnosis",
			Abstract:    "An analysis of how AI and machine learning algorithms are revolutionizing medical diagnosis, with particular focus on radiology and pathology applications.",
			Authors:     []string{"Chen, L.", "Patel, S.", "Garcia, A."},
			Keywords:    []string{"artificial intelligence", "medical diagnosis", "machine learning", "healthcare technology"},
			PublishDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Source:      "Digital Health Journal",
			URL:         "https://example.com/ai-medical-diagnosis",
		},
		{
			Title:       "Novel Treatments for Alzheimer's Disease",
			Abstract:    "This study presents emerging therapeutic approaches for Alzheimer's disease, including targeted immunotherapy and novel drug delivery systems.",
			Authors:     []string{"Brown, K.", "Lee, H.", "Anderson, P."},
			Keywords:    []string{"Alzheimer's", "neurology", "immunotherapy", "drug delivery"},
			PublishDate: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			Source:      "Neuroscience Today",
			URL:         "https://example.com/alzheimers-treatments",
		},
	}
}

// Ads returns the sample ad catalog. IDs are fixed so reseeding is a no-op.
func Ads() []store.Ad {
	return []store.Ad{
		{
			ID:           "ad-cystic-fibrosis",
			Title:        "Breakthroughs in Cystic Fibrosis",
			Content:      "Learn about the newest CFTR modulator therapies and patient support programs.",
			Keywords:     []string{"cystic fibrosis", "CFTR", "pulmonology"},
			Category:     "respiratory",
			IsActive:     true,
			Budget:       500,
			AdvertiserID: "adv-pulmocare",
			Priority:     10,
		},
		{
			ID:           "ad-immunology-summit",
			Title:        "Global Immunology Summit 2026",
			Content:      "Join leading researchers presenting the latest in vaccines and immunotherapy.",
			Keywords:     []string{"immunology", "vaccines", "immunotherapy"},
			Category:     "events",
			IsActive:     true,
			Budget:       300,
			AdvertiserID: "adv-medconf",
			Priority:     5,
		},
		{
			ID:           "ad-neuro-trials",
			Title:        "Neurology Clinical Trials Registry",
			Content:      "Enroll patients in active trials for Alzheimer's and Parkinson's treatments.",
			Keywords:     []string{"neurology", "alzheimer's", "clinical trials"},
			Category:     "research",
			IsActive:     true,
			Budget:       250,
			AdvertiserID: "adv-neuronet",
			Priority:     5,
		},
		{
			ID:           "ad-generic-journal",
			Title:        "MedLine Digest Subscription",
			Content:      "Weekly curated summaries of the most cited medical research.",
			Keywords:     []string{"medical research", "journal"},
			Category:     "generic",
			IsActive:     true,
			Budget:       100,
			AdvertiserID: "adv-medline",
			Priority:     0,
		},
	}
}

// Apply loads the sample articles and ads. Safe to run repeatedly: articles
// dedupe on normalized title and ads on fixed IDs.
func Apply(ctx context.Context, st store.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, a := range Articles() {
		article := a
		if _, err := st.UpsertArticle(ctx, &article); err != nil {
			return fmt.Errorf("seed article %q: %w", a.Title, err)
		}
	}

	for _, ad := range Ads() {
		adCopy := ad
		if err := st.CreateAd(ctx, &adCopy); err != nil {
			return fmt.Errorf("seed ad %s: %w", ad.ID, err)
		}
	}

	logger.Info("database seeded", "articles", len(Articles()), "ads", len(Ads()))
	return nil
}
