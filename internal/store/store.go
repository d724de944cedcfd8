package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Article is a cached reference article, content-addressed by normalized title.
type Article struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	TitleKey     string    `db:"title_key" json:"-"`
	Abstract     string    `db:"abstract" json:"abstract"`
	Authors      []string  `db:"-" json:"authors"`
	Keywords     []string  `db:"-" json:"keywords"`
	PublishDate  time.Time `db:"publish_date" json:"publishDate"`
	Source       string    `db:"source" json:"source"`
	URL          string    `db:"url" json:"url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	AuthorsJSON  string    `db:"authors" json:"-"`
	KeywordsJSON string    `db:"keywords" json:"-"`
}

// Search is an append-only history entry for one completed query.
type Search struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Query     string    `db:"query" json:"query"`
	AISummary string    `db:"ai_summary" json:"aiSummary,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Articles  []Article `db:"-" json:"articles"`
}

// Ad is a sponsored advertisement owned by an advertiser.
type Ad struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Content      string    `db:"content" json:"content"`
	Keywords     []string  `db:"-" json:"keywords"`
	Category     string    `db:"category" json:"category"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	Budget       float64   `db:"budget" json:"budget"`
	AdvertiserID string    `db:"advertiser_id" json:"advertiserId"`
	Priority     int       `db:"priority" json:"priority"`
	Clicks       int64     `db:"clicks" json:"clicks"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	KeywordsJSON string    `db:"keywords" json:"-"`
}

// AdImpression records one ad shown for one search. Clicked transitions
// false to true at most once.
type AdImpression struct {
	ID        string    `db:"id" json:"id"`
	AdID      string    `db:"ad_id" json:"adId"`
	SearchID  string    `db:"search_id" json:"searchId"`
	Clicked   bool      `db:"clicked" json:"clicked"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Bucket is one day of impression volume.
type Bucket struct {
	Day   string `db:"bucket" json:"day"`
	Count int    `db:"n" json:"count"`
}

// Store is the persistence interface.
type Store interface {
	UpsertArticle(ctx context.Context, a *Article) (*Article, error)
	SearchArticles(ctx context.Context, query string, keywords []string, limit int) ([]Article, error)

	CreateSearch(ctx context.Context, s *Search, articleIDs []string) error
	ListSearches(ctx context.Context, userID string, limit int) ([]Search, error)

	CreateAd(ctx context.Context, ad *Ad) error
	ListActiveAds(ctx context.Context) ([]Ad, error)
	ListAdsByCategory(ctx context.Context, category string) ([]Ad, error)

	CreateImpressions(ctx context.Context, searchID string, adIDs []string) ([]AdImpression, error)
	GetImpression(ctx context.Context, id string) (*AdImpression, error)
	RecordClick(ctx context.Context, impressionID, adID string) error
	CountImpressionsByDay(ctx context.Context, advertiserID string, since time.Time) ([]Bucket, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NormalizeTitle folds case, trims, and collapses inner whitespace to form
// the article identity key.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// UpsertArticle inserts the candidate if no article with the same normalized
// title exists, and returns the stored row either way. First write wins; the
// uniqueness constraint on title_key makes this safe under concurrent callers.
func (s *SQLiteStore) UpsertArticle(ctx context.Context, a *Article) (*Article, error) {
	key := NormalizeTitle(a.Title)
	if key == "" {
		return nil, fmt.Errorf("upsert article: empty title")
	}

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	publishDate := a.PublishDate
	if publishDate.IsZero() {
		publishDate = time.Now().UTC()
	}
	authorsJSON, _ := json.Marshal(a.Authors)
	keywordsJSON, _ := json.Marshal(a.Keywords)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, title, title_key, abstract, authors, keywords, publish_date, source, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title_key) DO NOTHING
	`, id, a.Title, key, a.Abstract, string(authorsJSON), string(keywordsJSON),
		publishDate, a.Source, a.URL, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert article %q: %w", key, err)
	}

	var row Article
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM articles WHERE title_key = ?", key); err != nil {
		return nil, fmt.Errorf("fetch article %q: %w", key, err)
	}
	decodeArticle(&row)
	return &row, nil
}

// SearchArticles matches cached articles against the raw query (substring on
// title/abstract) or any of the extracted keywords, newest publish date first.
func (s *SQLiteStore) SearchArticles(ctx context.Context, query string, keywords []string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 10
	}

	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	or := sq.Or{
		sq.Expr("lower(title) LIKE ?", needle),
		sq.Expr("lower(abstract) LIKE ?", needle),
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		or = append(or, sq.Expr("lower(keywords) LIKE ?", "%"+kw+"%"))
	}

	sqlStr, args, err := sq.Select("*").
		From("articles").
		Where(or).
		OrderBy("publish_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article search: %w", err)
	}

	var articles []Article
	if err := s.db.SelectContext(ctx, &articles, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	for i := range articles {
		decodeArticle(&articles[i])
	}
	return articles, nil
}

// CreateSearch inserts the search row and its article associations in one
// transaction.
func (s *SQLiteStore) CreateSearch(ctx context.Context, search *Search, articleIDs []string) error {
	if search.ID == "" {
		search.ID = uuid.NewString()
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create search: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO searches (id, user_id, query, ai_summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, search.ID, search.UserID, search.Query, search.AISummary, search.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}

	for _, articleID := range articleIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO search_articles (search_id, article_id)
			VALUES (?, ?)
			ON CONFLICT(search_id, article_id) DO NOTHING
		`, search.ID, articleID)
		if err != nil {
			return fmt.Errorf("associate article %s: %w", articleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create search: %w", err)
	}
	return nil
}

// ListSearches returns the user's most recent searches, newest first, with
// their associated articles loaded.
func (s *SQLiteStore) ListSearches(ctx context.Context, userID string, limit int) ([]Search, error) {
	if limit <= 0 {
		limit = 3
	}

	var searches []Search
	err := s.db.SelectContext(ctx, &searches, `
		SELECT * FROM searches
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list searches %s: %w", userID, err)
	}

	for i := range searches {
		var articles []Article
		err := s.db.SelectContext(ctx, &articles, `
			SELECT a.* FROM articles a
			JOIN search_articles sa ON sa.article_id = a.id
			WHERE sa.search_id = ?
			ORDER BY a.publish_date DESC
		`, searches[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load search articles %s: %w", searches[i].ID, err)
		}
		for j := range articles {
			decodeArticle(&articles[j])
		}
		searches[i].Articles = articles
	}
	return searches, nil
}

// CreateAd inserts an ad. Inserting an existing ID is a no-op, so seeding is
// idempotent.
func (s *SQLiteStore) CreateAd(ctx context.Context, ad *Ad) error {
	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = time.Now().UTC()
	}
	keywordsJSON, _ := json.Marshal(ad.Keywords)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (id, title, content, keywords, category, is_active, budget, advertiser_id, priority, clicks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ad.ID, ad.Title, ad.Content, string(keywordsJSON), ad.Category,
		ad.IsActive, ad.Budget, ad.AdvertiserID, ad.Priority, ad.Clicks, ad.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ad %s: %w", ad.ID, err)
	}
	return nil
}

// ListActiveAds returns serving-eligible ads in deterministic order:
// priority first, then insertion order.
func (s *SQLiteStore) ListActiveAds(ctx context.Context) ([]Ad, error) {
	return s.listAds(ctx, sq.And{
		sq.Eq{"is_active": true},
		sq.Gt{"budget": 0},
	})
}

// ListAdsByCategory returns serving-eligible ads in the given category.
func (s *SQLiteStore) ListAdsByCategory(ctx context.Context, category string) ([]Ad, error) {
	return s.listAds(ctx, sq.And{
		sq.Eq{"is_active": true},
		sq.Gt{"budget": 0},
		sq.Eq{"category": category},
	})
}

func (s *SQLiteStore) listAds(ctx context.Context, where sq.Sqlizer) ([]Ad, error) {
	sqlStr, args, err := sq.Select("*").
		From("ads").
		Where(where).
		OrderBy("priority DESC", "created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ad listing: %w", err)
	}

	var ads []Ad
	if err := s.db.SelectContext(ctx, &ads, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}
	for i := range ads {
		json.Unmarshal([]byte(ads[i].KeywordsJSON), &ads[i].Keywords)
	}
	return ads, nil
}

// CreateImpressions records one unclicked impression per ad for the search.
// The uniqueness constraint on (ad_id, search_id) makes a repeated match for
// the same search reuse the existing impressions instead of duplicating them.
func (s *SQLiteStore) CreateImpressions(ctx context.Context, searchID string, adIDs []string) ([]AdImpression, error) {
	if searchID == "" {
		return nil, fmt.Errorf("create impressions: empty search id")
	}

	now := time.Now().UTC()
	impressions := make([]AdImpression, 0, len(adIDs))

	for _, adID := range adIDs {
		imp := AdImpression{
			ID:        uuid.NewString(),
			AdID:      adID,
			SearchID:  searchID,
			CreatedAt: now,
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO ad_impressions (id, ad_id, search_id, clicked, created_at)
			VALUES (?, ?, ?, 0, ?)
			ON CONFLICT(ad_id, search_id) DO NOTHING
		`, imp.ID, imp.AdID, imp.SearchID, imp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create impression ad=%s search=%s: %w", adID, searchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := s.db.GetContext(ctx, &imp,
				"SELECT * FROM ad_impressions WHERE ad_id = ? AND search_id = ?",
				adID, searchID); err != nil {
				return nil, fmt.Errorf("fetch impression ad=%s search=%s: %w", adID, searchID, err)
			}
		}
		impressions = append(impressions, imp)
	}
	return impressions, nil
}

func (s *SQLiteStore) GetImpression(ctx context.Context, id string) (*AdImpression, error) {
	var imp AdImpression
	err := s.db.GetContext(ctx, &imp, "SELECT * FROM ad_impressions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get impression %s: %w", id, err)
	}
	return &imp, nil
}

// RecordClick attributes a click to an impression. The clicked flag and the
// ad's click counter move together in one transaction, and the guarded UPDATE
// makes a repeated or concurrent click a no-op rather than a double count.
func (s *SQLiteStore) RecordClick(ctx context.Context, impressionID, adID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record click: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ad_impressions SET clicked = 1
		WHERE id = ? AND ad_id = ? AND clicked = 0
	`, impressionID, adID)
	if err != nil {
		return fmt.Errorf("mark clicked %s: %w", impressionID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark clicked %s: %w", impressionID, err)
	}

	if n == 0 {
		// Either already clicked (no-op) or the impression doesn't exist.
		var count int
		if err := tx.GetContext(ctx, &count,
			"SELECT COUNT(*) FROM ad_impressions WHERE id = ? AND ad_id = ?",
			impressionID, adID); err != nil {
			return fmt.Errorf("check impression %s: %w", impressionID, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE ads SET clicks = clicks + 1 WHERE id = ?", adID); err != nil {
		return fmt.Errorf("increment clicks %s: %w", adID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record click: %w", err)
	}
	return nil
}

// CountImpressionsByDay groups impression volume since the given time into
// UTC day buckets, optionally restricted to one advertiser's ads.
func (s *SQLiteStore) CountImpressionsByDay(ctx context.Context, advertiserID string, since time.Time) ([]Bucket, error) {
	b := sq.Select("substr(ai.created_at, 1, 10) AS bucket", "COUNT(*) AS n").
		From("ad_impressions ai").
		Where(sq.GtOrEq{"ai.created_at": since})

	if advertiserID != "" {
		b = b.Join("ads a ON a.id = ai.ad_id").
			Where(sq.Eq{"a.advertiser_id": advertiserID})
	}

	sqlStr, args, err := b.GroupBy("bucket").OrderBy("bucket ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build impression counts: %w", err)
	}

	var buckets []Bucket
	if err := s.db.SelectContext(ctx, &buckets, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("count impressions: %w", err)
	}
	return buckets, nil
}

func decodeArticle(a *Article) {
	json.Unmarshal([]byte(a.AuthorsJSON), &a.Authors)
	json.Unmarshal([]byte(a.KeywordsJSON), &a.Keywords)
}
