package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/medsearch/internal/store"
)

// TimeframeDays maps a timeframe selector to a lookback in days. Unknown
// values fall back to 7 days.
func TimeframeDays(timeframe string) int {
	switch timeframe {
	case "30d":
		return 30
	case "90d":
		return 90
	default:
		return 7
	}
}

// Report is impression volume over a lookback window, bucketed by day.
type Report struct {
	Timeframe    string         `json:"timeframe"`
	AdvertiserID string         `json:"advertiserId,omitempty"`
	Since        time.Time      `json:"since"`
	Buckets      []store.Bucket `json:"buckets"`
	Total        int            `json:"total"`
}

// Aggregator summarizes the impression ledger. Read-only.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates an aggregator over the store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Aggregate counts impressions per UTC day inside the timeframe's window,
// optionally restricted to one advertiser.
func (a *Aggregator) Aggregate(ctx context.Context, advertiserID, timeframe string) (*Report, error) {
	days := TimeframeDays(timeframe)
	since := time.Now().UTC().AddDate(0, 0, -days)

	buckets, err := a.store.CountImpressionsByDay(ctx, advertiserID, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate impressions: %w", err)
	}

	total := 0
	for _, b := range buckets {
		total += b.Count
	}

	return &Report{
		Timeframe:    timeframe,
		AdvertiserID: advertiserID,
		Since:        since,
		Buckets:      buckets,
		Total:        total,
	}, nil
}
