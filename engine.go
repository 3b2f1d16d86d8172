package tidings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings/internal/ai"
	"github.com/matthewjhunter/tidings/internal/feeds"
	"github.com/matthewjhunter/tidings/internal/storage"
)

// ErrBulkImportDisabled is returned by BulkImport unless the engine was
// configured to allow it.
var ErrBulkImportDisabled = errors.New("bulk import is disabled")

// ListingFetcher yields candidate articles from the news source.
type ListingFetcher interface {
	FetchListing(ctx context.Context) ([]storage.Candidate, error)
	FetchArchivePage(ctx context.Context, page int) ([]storage.Candidate, error)
}

// DateExtractor finds the publication date of an article page. A nil time
// with a nil error means the page has no recognizable date.
type DateExtractor interface {
	PublishedAt(ctx context.Context, articleURL string) (*time.Time, error)
}

// Summarizer generates the annotation for one article.
type Summarizer interface {
	Summarize(ctx context.Context, articleURL, title string) (*ai.Annotation, error)
}

// Engine is the public API for tidings' ingestion and summary pipeline.
// It wraps the article store, the listing and article fetchers, and the
// summarizer. Operations run sequentially in the caller's goroutine.
type Engine struct {
	store      storage.Store
	lister     ListingFetcher
	dates      DateExtractor
	summarizer Summarizer

	source          string
	allowBulkImport bool
	pace            time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// Option customizes an Engine built with New.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBulkImport enables or disables BulkImport.
func WithBulkImport(allow bool) Option {
	return func(e *Engine) { e.allowBulkImport = allow }
}

// WithRepopulateInterval sets the spacing between summarizer calls during
// RepopulateSummaries.
func WithRepopulateInterval(d time.Duration) Option {
	return func(e *Engine) { e.pace = d }
}

// WithSource records the listing address reported by Stats.
func WithSource(source string) Option {
	return func(e *Engine) { e.source = source }
}

// New assembles an engine from its collaborators.
func New(store storage.Store, lister ListingFetcher, dates DateExtractor, summarizer Summarizer, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		lister:     lister,
		dates:      dates,
		summarizer: summarizer,
		pace:       5 * time.Second,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngineConfig maps a loaded config file onto EngineConfig.
func NewEngineConfig(cfg *storage.Config) EngineConfig {
	return EngineConfig{
		DBPath:             cfg.Database.Path,
		SourceKind:         cfg.Source.Kind,
		BaseURL:            cfg.Source.BaseURL,
		SectionPath:        cfg.Source.SectionPath,
		FeedURL:            cfg.Source.FeedURL,
		UserAgent:          cfg.Source.UserAgent,
		ListingTimeout:     cfg.Source.ListingTimeout,
		ArticleTimeout:     cfg.Source.ArticleTimeout,
		ContentTimeout:     cfg.Source.ContentTimeout,
		OllamaBaseURL:      cfg.Ollama.BaseURL,
		Model:              cfg.Ollama.Model,
		RepopulateInterval: cfg.Summaries.RepopulateInterval,
		Config:             cfg,
	}
}

// NewEngine creates a tidings engine backed by the given SQLite database.
// The summarizer is created eagerly but only contacts Ollama when called.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.christiantoday.co.kr"
	}
	if cfg.SectionPath == "" {
		cfg.SectionPath = "/sections/pd_19"
	}
	if cfg.Model == "" {
		cfg.Model = "gemma3:4b"
	}
	if cfg.RepopulateInterval == 0 {
		cfg.RepopulateInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts := feeds.Options{
		UserAgent:      cfg.UserAgent,
		ListingTimeout: cfg.ListingTimeout,
		ArticleTimeout: cfg.ArticleTimeout,
		ContentTimeout: cfg.ContentTimeout,
		Logger:         cfg.Logger.Named("feeds"),
	}

	var lister ListingFetcher
	var source string
	switch cfg.SourceKind {
	case "", "section":
		sl, err := feeds.NewSectionLister(cfg.BaseURL, cfg.SectionPath, opts)
		if err != nil {
			return nil, fmt.Errorf("create section lister: %w", err)
		}
		lister, source = sl, sl.ListingURL()
	case "feed":
		if cfg.FeedURL == "" {
			return nil, errors.New("feed source requires a feed URL")
		}
		lister, source = feeds.NewFeedLister(cfg.FeedURL, opts), cfg.FeedURL
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}

	articles := feeds.NewArticleFetcher("", opts)
	summarizer, err := ai.NewSummarizer(cfg.OllamaBaseURL, cfg.Model, articles, cfg.Config, cfg.Logger.Named("ai"))
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return New(store, lister, articles, summarizer,
		WithLogger(cfg.Logger),
		WithBulkImport(cfg.AllowBulkImport),
		WithRepopulateInterval(cfg.RepopulateInterval),
		WithSource(source),
	), nil
}

// Close releases the database connection.
func (e *Engine) Close() error {
	return e.store.Close()
}

// CheckForNew fetches the current listing once and stores the articles not
// seen before. A failed or empty fetch is reported as CheckFetchFailed, not
// as an error; errors are reserved for the store.
func (e *Engine) CheckForNew(ctx context.Context) (*CheckResult, error) {
	candidates, err := e.lister.FetchListing(ctx)
	return e.ingest(candidates, err)
}

// BulkImport ingests an older listing page through the same path as
// CheckForNew. It does nothing unless bulk import was enabled.
func (e *Engine) BulkImport(ctx context.Context, page int) (*CheckResult, error) {
	if !e.allowBulkImport {
		return nil, ErrBulkImportDisabled
	}
	if page < 1 {
		page = 2
	}
	candidates, err := e.lister.FetchArchivePage(ctx, page)
	return e.ingest(candidates, err)
}

func (e *Engine) ingest(candidates []storage.Candidate, fetchErr error) (*CheckResult, error) {
	result := &CheckResult{Status: CheckOK, Found: len(candidates), Inserted: []Article{}, CheckedAt: e.now()}
	if fetchErr != nil || len(candidates) == 0 {
		e.logger.Warn("listing fetch failed or empty", zap.Error(fetchErr))
		result.Status = CheckFetchFailed
		return result, nil
	}

	inserted, err := e.store.InsertNew(candidates)
	if err != nil {
		return nil, fmt.Errorf("store articles: %w", err)
	}
	for _, a := range inserted {
		result.Inserted = append(result.Inserted, toArticle(a))
	}
	e.logger.Info("checked listing", zap.Int("found", len(candidates)), zap.Int("inserted", len(inserted)))
	return result, nil
}

// Page returns one page of stored articles, newest first. Out-of-range
// input is clamped the same way the store clamps it.
func (e *Engine) Page(page, perPage int) (*Page, error) {
	page, perPage = storage.ClampPage(page, perPage)
	articles, err := e.store.GetPage(page, perPage)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	total, err := e.store.Count()
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	result := &Page{
		Articles:   make([]Article, 0, len(articles)),
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	for _, a := range articles {
		result.Articles = append(result.Articles, toArticle(a))
	}
	return result, nil
}

// Latest returns the limit newest articles.
func (e *Engine) Latest(limit int) ([]Article, error) {
	articles, err := e.store.Latest(limit)
	if err != nil {
		return nil, fmt.Errorf("get latest articles: %w", err)
	}
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticle(a))
	}
	return out, nil
}

// Backfill looks up publication dates for articles stored without one.
// Articles whose page cannot be fetched or carries no date are skipped.
func (e *Engine) Backfill(ctx context.Context) (*BackfillResult, error) {
	urls, err := e.store.MissingDates()
	if err != nil {
		return nil, fmt.Errorf("list undated articles: %w", err)
	}

	result := &BackfillResult{Candidates: len(urls)}
	for _, u := range urls {
		published, err := e.dates.PublishedAt(ctx, u)
		if err != nil {
			e.logger.Warn("date lookup failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if published == nil {
			e.logger.Debug("no date found", zap.String("url", u))
			continue
		}
		if err := e.store.SetPublishedAt(u, *published); err != nil {
			e.logger.Warn("date update failed", zap.String("url", u), zap.Error(err))
			continue
		}
		result.Updated++
	}
	e.logger.Info("backfilled dates", zap.Int("candidates", result.Candidates), zap.Int("updated", result.Updated))
	return result, nil
}

// Stats reports collection totals.
func (e *Engine) Stats() (*Stats, error) {
	total, err := e.store.Count()
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	summaries, err := e.store.CountSummaries()
	if err != nil {
		return nil, fmt.Errorf("count summaries: %w", err)
	}
	last, err := e.store.LastCreatedAt()
	if err != nil {
		return nil, fmt.Errorf("last update: %w", err)
	}
	return &Stats{TotalArticles: total, TotalSummaries: summaries, LastUpdated: last, Source: e.source}, nil
}

func toArticle(a storage.Article) Article {
	return Article{
		URL:         a.URL,
		Title:       a.Title,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
}
