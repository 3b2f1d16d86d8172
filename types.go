package tidings

import (
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings/internal/storage"
)

// EngineConfig configures the tidings engine.
type EngineConfig struct {
	DBPath string

	// Listing source: "section" scrapes SectionPath under BaseURL, "feed"
	// reads FeedURL.
	SourceKind  string
	BaseURL     string
	SectionPath string
	FeedURL     string
	UserAgent   string

	ListingTimeout time.Duration
	ArticleTimeout time.Duration
	ContentTimeout time.Duration

	OllamaBaseURL string
	Model         string

	// RepopulateInterval is the minimum spacing between summarizer calls
	// during RepopulateSummaries.
	RepopulateInterval time.Duration

	// AllowBulkImport enables BulkImport; it is off unless the operator
	// asks for it.
	AllowBulkImport bool

	// Config carries prompt and temperature overrides.
	Config *storage.Config
	Logger *zap.Logger
}

// Article is a stored news article.
type Article struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CheckStatus is the outcome of one ingestion pass.
type CheckStatus string

const (
	CheckOK          CheckStatus = "ok"
	CheckFetchFailed CheckStatus = "fetch_failed"
)

// CheckResult reports what an ingestion pass found and stored.
type CheckResult struct {
	Status    CheckStatus `json:"status"`
	Found     int         `json:"found"`
	Inserted  []Article   `json:"inserted"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Page is one page of stored articles, newest first.
type Page struct {
	Articles   []Article `json:"articles"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// Summary is the cached annotation of one article.
type Summary struct {
	ArticleURL  string    `json:"article_url"`
	Title       string    `json:"title,omitempty"`
	Summary     string    `json:"summary"`
	Keywords    []string  `json:"keywords"`
	BibleVerses []string  `json:"bible_verses"`
	CreatedAt   time.Time `json:"created_at"`
}

// SummaryOutcome distinguishes how a summary request was resolved.
type SummaryOutcome string

const (
	SummaryExisted   SummaryOutcome = "existed"
	SummaryGenerated SummaryOutcome = "generated"
	SummaryNotFound  SummaryOutcome = "not_found"
	SummaryFailed    SummaryOutcome = "failed"
)

// SummaryResult is the outcome of a single-article summary request.
// Summary is set for SummaryExisted and SummaryGenerated; Err explains
// SummaryFailed.
type SummaryResult struct {
	Outcome SummaryOutcome `json:"outcome"`
	Summary *Summary       `json:"summary,omitempty"`
	Err     error          `json:"-"`
}

// AlreadyExisted reports whether the summary was served from the cache.
func (r *SummaryResult) AlreadyExisted() bool {
	return r.Outcome == SummaryExisted
}

// RepopulateResult summarizes a bulk regeneration run.
type RepopulateResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Total     int      `json:"total"`
	FailedURL []string `json:"failed_urls,omitempty"`
}

// BackfillResult reports a date backfill run.
type BackfillResult struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
}

// Stats describes the stored collection.
type Stats struct {
	TotalArticles  int        `json:"total_articles"`
	TotalSummaries int        `json:"total_summaries"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
	Source         string     `json:"source"`
}
