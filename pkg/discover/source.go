package discover

import (
	"context"
	"time"

	"github.com/elonfeng/medsearch/internal/store"
)

// Candidate is an article record proposed by a discovery source, before it
// has been resolved through the cache.
type Candidate struct {
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract"`
	Authors     []string `json:"authors"`
	Keywords    []string `json:"keywords"`
	PublishDate string   `json:"publishDate"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
}

// Article converts the candidate into a store row.
func (c Candidate) Article() store.Article {
	return store.Article{
		Title:       c.Title,
		Abstract:    c.Abstract,
		Authors:     c.Authors,
		Keywords:    c.Keywords,
		PublishDate: parsePublishDate(c.PublishDate),
		Source:      c.Source,
		URL:         c.URL,
	}
}

// Batch is the tagged result of a discovery call: either parsed candidates,
// or the raw payload when the response could not be parsed as a whole.
type Batch struct {
	Candidates []Candidate
	Raw        string
}

// Source proposes candidate articles for a query.
type Source interface {
	Name() string
	Discover(ctx context.Context, query string, keywords []string) (Batch, error)
}

func parsePublishDate(value string) time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
