package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultPerPage applies when a requested page size is out of range.
	DefaultPerPage = 20
	MaxPerPage     = 100

	// UntitledPlaceholder stands in for titles the listing could not extract.
	UntitledPlaceholder = "제목 없음"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Candidate is a listing entry not yet known to be stored.
type Candidate struct {
	URL         string
	Title       string
	PublishedAt *time.Time
}

type Article struct {
	URL         string
	Title       string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// EffectiveDate is the ordering key: the publication date when known,
// otherwise the ingestion time.
func (a Article) EffectiveDate() time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

type Summary struct {
	ID          int64
	ArticleURL  string
	Summary     string
	Keywords    []string
	BibleVerses []string
	CreatedAt   time.Time
}

type SummaryWithArticle struct {
	Summary
	Title string
}

// NewSQLiteStore creates a new database connection and initializes the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from tripping over each other and
	// makes the pragmas above apply to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for databases created before dates were tracked.
	migrations := []string{
		"ALTER TABLE posts ADD COLUMN published_at TIMESTAMP",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	if _, err := db.Exec(indexes); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertNew stores every candidate whose URL is not yet present and returns
// the ones actually inserted, in input order. The whole batch runs in one
// transaction; when a URL repeats within the batch the first occurrence wins.
func (s *SQLiteStore) InsertNew(candidates []Candidate) ([]Article, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingURLs(tx)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO posts (url, title, published_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.now().UTC()
	seen := make(map[string]bool, len(candidates))
	var inserted []Article
	for _, c := range candidates {
		if c.URL == "" || existing[c.URL] || seen[c.URL] {
			continue
		}
		seen[c.URL] = true

		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = UntitledPlaceholder
		}
		var published *time.Time
		if c.PublishedAt != nil {
			t := c.PublishedAt.UTC()
			published = &t
		}

		result, err := stmt.Exec(c.URL, title, published, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert article %s: %w", c.URL, err)
		}
		// Zero rows means another writer stored the URL after the
		// existing set was read; it is already present, not new.
		if n, _ := result.RowsAffected(); n == 0 {
			continue
		}
		inserted = append(inserted, Article{
			URL:         c.URL,
			Title:       title,
			PublishedAt: published,
			CreatedAt:   createdAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit articles: %w", err)
	}
	return inserted, nil
}

func existingURLs(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query("SELECT url FROM posts")
	if err != nil {
		return nil, fmt.Errorf("failed to read existing urls: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls[u] = true
	}
	return urls, rows.Err()
}

// ClampPage normalizes pagination input: pages start at 1 and page sizes
// outside [1, MaxPerPage] fall back to DefaultPerPage.
func ClampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = DefaultPerPage
	}
	// Keep (page-1)*perPage from overflowing into a negative offset.
	if maxPage := math.MaxInt/perPage + 1; page > maxPage {
		page = maxPage
	}
	return page, perPage
}

// GetPage returns one page of articles, newest effective date first.
func (s *SQLiteStore) GetPage(page, perPage int) ([]Article, error) {
	page, perPage = ClampPage(page, perPage)
	return s.queryArticles(`
		SELECT url, title, published_at, created_at FROM posts
		ORDER BY COALESCE(published_at, created_at) DESC, url ASC
		LIMIT ? OFFSET ?
	`, perPage, (page-1)*perPage)
}

// Latest returns the newest limit articles without the page-size clamp.
func (s *SQLiteStore) Latest(limit int) ([]Article, error) {
	if limit < 1 {
		return nil, nil
	}
	return s.queryArticles(`
		SELECT url, title, published_at, created_at FROM posts
		ORDER BY COALESCE(published_at, created_at) DESC, url ASC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) queryArticles(query string, args ...any) ([]Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*Article, error) {
	var a Article
	var title sql.NullString
	var created *time.Time
	if err := row.Scan(&a.URL, &title, &a.PublishedAt, &created); err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	a.Title = title.String
	if strings.TrimSpace(a.Title) == "" {
		a.Title = UntitledPlaceholder
	}
	if created != nil {
		a.CreatedAt = *created
	}
	return &a, nil
}

// Count returns the number of stored articles.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

// Find returns the article stored under url, or nil if there is none.
func (s *SQLiteStore) Find(url string) (*Article, error) {
	row := s.db.QueryRow("SELECT url, title, published_at, created_at FROM posts WHERE url = ?", url)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// LastCreatedAt returns the most recent ingestion time, or nil for an
// empty store.
func (s *SQLiteStore) LastCreatedAt() (*time.Time, error) {
	var last *time.Time
	err := s.db.QueryRow("SELECT created_at FROM posts ORDER BY created_at DESC LIMIT 1").Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last update: %w", err)
	}
	return last, nil
}

// MissingDates lists the URLs of articles without a publication date,
// oldest ingestion first.
func (s *SQLiteStore) MissingDates() ([]string, error) {
	rows, err := s.db.Query("SELECT url FROM posts WHERE published_at IS NULL ORDER BY created_at ASC, url ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query undated articles: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// SetPublishedAt records the publication date of an article. Setting the
// same value again is harmless.
func (s *SQLiteStore) SetPublishedAt(url string, publishedAt time.Time) error {
	_, err := s.db.Exec("UPDATE posts SET published_at = ? WHERE url = ?", publishedAt.UTC(), url)
	if err != nil {
		return fmt.Errorf("failed to set published date for %s: %w", url, err)
	}
	return nil
}

// GetSummary retrieves the cached summary of an article, or nil if none exists.
func (s *SQLiteStore) GetSummary(articleURL string) (*Summary, error) {
	row := s.db.QueryRow(`
		SELECT id, article_url, summary, keywords, bible_verses, created_at
		FROM article_summaries WHERE article_url = ?
	`, articleURL)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return sum, nil
}

func scanSummary(row scanner, extra ...any) (*Summary, error) {
	var sum Summary
	var keywords, verses sql.NullString
	var created *time.Time
	dest := append([]any{&sum.ID, &sum.ArticleURL, &sum.Summary, &keywords, &verses, &created}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	sum.Keywords = decodeList(keywords)
	sum.BibleVerses = decodeList(verses)
	if created != nil {
		sum.CreatedAt = *created
	}
	return &sum, nil
}

// SaveSummary stores a summary, replacing any previous one for the same article.
func (s *SQLiteStore) SaveSummary(sum *Summary) error {
	keywords, err := encodeList(sum.Keywords)
	if err != nil {
		return err
	}
	verses, err := encodeList(sum.BibleVerses)
	if err != nil {
		return err
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO article_summaries (article_url, summary, keywords, bible_verses, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(article_url) DO UPDATE SET
			summary = excluded.summary,
			keywords = excluded.keywords,
			bible_verses = excluded.bible_verses,
			created_at = excluded.created_at
	`, sum.ArticleURL, sum.Summary, keywords, verses, sum.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save summary for %s: %w", sum.ArticleURL, err)
	}
	return nil
}

// ListSummaries returns stored summaries joined with their article titles,
// most recently generated first.
func (s *SQLiteStore) ListSummaries(limit int) ([]SummaryWithArticle, error) {
	if limit < 1 {
		limit = DefaultPerPage
	}
	rows, err := s.db.Query(`
		SELECT s.id, s.article_url, s.summary, s.keywords, s.bible_verses, s.created_at, p.title
		FROM article_summaries s
		JOIN posts p ON p.url = s.article_url
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []SummaryWithArticle
	for rows.Next() {
		var title sql.NullString
		sum, err := scanSummary(rows, &title)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		item := SummaryWithArticle{Summary: *sum, Title: title.String}
		if strings.TrimSpace(item.Title) == "" {
			item.Title = UntitledPlaceholder
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CountSummaries returns the number of cached summaries.
func (s *SQLiteStore) CountSummaries() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM article_summaries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return n, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

// decodeList never fails: absent or corrupt column text reads as an empty list.
func decodeList(raw sql.NullString) []string {
	items := []string{}
	if !raw.Valid || raw.String == "" {
		return items
	}
	if err := json.Unmarshal([]byte(raw.String), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}
