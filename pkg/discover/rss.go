package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Feed is a named RSS/Atom feed URL.
type Feed struct {
	Name string
	URL  string
}

// Feeds discovers candidate articles from journal RSS/Atom feeds.
type Feeds struct {
	client     *http.Client
	parser     *gofeed.Parser
	feeds      []Feed
	maxResults int
	logger     *slog.Logger
}

// NewFeeds creates a feed-backed discovery source.
func NewFeeds(feeds []Feed, maxResults int, logger *slog.Logger) *Feeds {
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feeds{
		client:     &http.Client{Timeout: 30 * time.Second},
		parser:     gofeed.NewParser(),
		feeds:      feeds,
		maxResults: maxResults,
		logger:     logger,
	}
}

func (f *Feeds) Name() string { return "feeds" }

// Discover pulls all configured feeds and keeps entries relevant to the
// query or keywords. An empty query with no keywords keeps everything, which
// is how scheduled ingestion refreshes the cache. Per-feed failures are
// logged and skipped.
func (f *Feeds) Discover(ctx context.Context, query string, keywords []string) (Batch, error) {
	var candidates []Candidate

	for _, feed := range f.feeds {
		items, err := f.collectFeed(ctx, feed, query, keywords)
		if err != nil {
			f.logger.Warn("feed discovery failed", "feed", feed.Name, "error", err)
			continue
		}
		candidates = append(candidates, items...)
		if len(candidates) >= f.maxResults {
			candidates = candidates[:f.maxResults]
			break
		}
	}

	return Batch{Candidates: candidates}, nil
}

func (f *Feeds) collectFeed(ctx context.Context, feed Feed, query string, keywords []string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "medsearch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var items []Candidate
	for _, entry := range parsed.Items {
		if !entryMatches(entry, query, keywords) {
			continue
		}

		published := ""
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC().Format("2006-01-02")
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC().Format("2006-01-02")
		}

		var authors []string
		for _, a := range entry.Authors {
			if a != nil && a.Name != "" {
				authors = append(authors, a.Name)
			}
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		items = append(items, Candidate{
			Title:       entry.Title,
			Abstract:    truncate(strings.TrimSpace(entry.Description), 500),
			Authors:     authors,
			Keywords:    entry.Categories,
			PublishDate: published,
			Source:      feed.Name,
			URL:         link,
		})
	}
	return items, nil
}

func entryMatches(entry *gofeed.Item, query string, keywords []string) bool {
	if strings.TrimSpace(query) == "" && len(keywords) == 0 {
		return true
	}

	text := strings.ToLower(entry.Title + " " + entry.Description)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(text, q) {
		return true
	}
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
