package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/alert"
	"github.com/elonfeng/medsearch/pkg/analytics"
	"github.com/elonfeng/medsearch/pkg/discover"
)

// Scheduler runs periodic feed ingestion and the analytics digest.
type Scheduler struct {
	store      store.Store
	feeds      []discover.Source
	aggregator *analytics.Aggregator
	alertMgr   *alert.Manager
	ingestInt  time.Duration
	digestInt  time.Duration
	logger     *slog.Logger
}

// New creates a new scheduler.
func New(
	st store.Store,
	feeds []discover.Source,
	aggregator *analytics.Aggregator,
	alertMgr *alert.Manager,
	ingestInt, digestInt time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if ingestInt == 0 {
		ingestInt = time.Hour
	}
	if digestInt == 0 {
		digestInt = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      st,
		feeds:      feeds,
		aggregator: aggregator,
		alertMgr:   alertMgr,
		ingestInt:  ingestInt,
		digestInt:  digestInt,
		logger:     logger,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ingestTicker := time.NewTicker(s.ingestInt)
	digestTicker := time.NewTicker(s.digestInt)
	defer ingestTicker.Stop()
	defer digestTicker.Stop()

	s.logger.Info("scheduler running", "ingest_every", s.ingestInt, "digest_every", s.digestInt)
	s.ingest(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ingestTicker.C:
			s.ingest(ctx)
		case <-digestTicker.C:
			s.digest(ctx)
		}
	}
}

// ingest pulls every configured feed unfiltered and resolves its entries
// through the article cache, so the local match keeps working without a
// single user query.
func (s *Scheduler) ingest(ctx context.Context) {
	total := 0
	for _, src := range s.feeds {
		batch, err := src.Discover(ctx, "", nil)
		if err != nil {
			s.logger.Warn("feed ingestion failed", "source", src.Name(), "error", err)
			continue
		}
		for _, c := range batch.Candidates {
			if c.Title == "" || c.Abstract == "" {
				continue
			}
			article := c.Article()
			if _, err := s.store.UpsertArticle(ctx, &article); err != nil {
				s.logger.Warn("feed article upsert failed", "source", src.Name(), "error", err)
				continue
			}
			total++
		}
	}
	s.logger.Info("feed ingestion complete", "articles", total)
}

func (s *Scheduler) digest(ctx context.Context) {
	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return
	}

	report, err := s.aggregator.Aggregate(ctx, "", "7d")
	if err != nil {
		s.logger.Warn("digest aggregation failed", "error", err)
		return
	}

	d := &alert.Digest{
		Title:     "Ad impression digest",
		Body:      fmt.Sprintf("%d impressions across %d days", report.Total, len(report.Buckets)),
		Timeframe: report.Timeframe,
		Total:     report.Total,
		Buckets:   report.Buckets,
	}
	if err := s.alertMgr.Broadcast(ctx, d); err != nil {
		s.logger.Warn("digest broadcast failed", "error", err)
		return
	}
	s.logger.Info("digest sent", "impressions", report.Total)
}
