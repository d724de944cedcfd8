package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/elonfeng/medsearch/internal/config"
	"github.com/elonfeng/medsearch/internal/logging"
	"github.com/elonfeng/medsearch/internal/scheduler"
	"github.com/elonfeng/medsearch/internal/seed"
	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/ads"
	"github.com/elonfeng/medsearch/pkg/alert"
	"github.com/elonfeng/medsearch/pkg/analytics"
	"github.com/elonfeng/medsearch/pkg/discover"
	"github.com/elonfeng/medsearch/pkg/keywords"
	"github.com/elonfeng/medsearch/pkg/llm"
	"github.com/elonfeng/medsearch/pkg/search"
	"github.com/elonfeng/medsearch/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildCompleter(cfg *config.Config, logger *slog.Logger) llm.Completer {
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		logger.Warn("inference capability disabled, running with local fallbacks only")
		return nil
	}
	logger.Info("inference capability enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return llm.NewClient(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

func buildFeeds(cfg *config.Config, logger *slog.Logger) *discover.Feeds {
	feeds := make([]discover.Feed, len(cfg.Discovery.Feeds))
	for i, f := range cfg.Discovery.Feeds {
		feeds[i] = discover.Feed{Name: f.Name, URL: f.URL}
	}
	return discover.NewFeeds(feeds, cfg.Discovery.MaxResults, logger)
}

func buildPipeline(cfg *config.Config, db store.Store, completer llm.Completer, logger *slog.Logger) (*search.Pipeline, *keywords.Extractor) {
	extractor := keywords.NewExtractor(completer, cfg.LLM.KeywordModel, cfg.LLM.Temperature, logger)

	var sources []discover.Source
	if completer != nil {
		sources = append(sources, discover.NewLLM(completer, cfg.LLM.Model, cfg.LLM.Temperature, cfg.Discovery.MaxResults, logger))
	}
	if len(cfg.Discovery.Feeds) > 0 {
		sources = append(sources, buildFeeds(cfg, logger))
	}

	retriever := search.NewRetriever(db, sources, cfg.Search.MaxResults, logger)
	summarizer := search.NewSummarizer(completer, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxSummaryTokens, logger)
	pipeline := search.NewPipeline(db, extractor, retriever, summarizer, logger)
	return pipeline, extractor
}

func buildServer(cfg *config.Config, db store.Store, port int, logger *slog.Logger) *server.Server {
	if port == 0 {
		port = cfg.Server.Port
	}

	completer := buildCompleter(cfg, logger)
	pipeline, extractor := buildPipeline(cfg, db, completer, logger)
	matcher := ads.NewMatcher(db, cfg.Ads.MaxMatches, cfg.Ads.FallbackCategory, logger)
	aggregator := analytics.NewAggregator(db)

	return server.New(db, pipeline, extractor, matcher, aggregator,
		cfg.Search.HistoryLimit, port, logger)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return buildServer(cfg, db, port, logger).ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var feedSources []discover.Source
	if len(cfg.Discovery.Feeds) > 0 {
		feedSources = append(feedSources, buildFeeds(cfg, logger))
	}

	sched := scheduler.New(db, feedSources,
		analytics.NewAggregator(db),
		buildAlertManager(cfg),
		cfg.Schedule.ParseIngestInterval(),
		cfg.Schedule.ParseDigestInterval(),
		logger,
	)

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
	}()

	return buildServer(cfg, db, port, logger).ListenAndServe()
}

func runSeed() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return seed.Apply(context.Background(), db, logger)
}

func runAnalytics(advertiserID, timeframe string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	report, err := analytics.NewAggregator(db).Aggregate(context.Background(), advertiserID, timeframe)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if len(report.Buckets) == 0 {
		fmt.Println("no impressions in window")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tIMPRESSIONS")
	for _, b := range report.Buckets {
		fmt.Fprintf(w, "%s\t%d\n", b.Day, b.Count)
	}
	fmt.Fprintf(w, "TOTAL\t%d\n", report.Total)
	return w.Flush()
}
