package storage

import "time"

// Store defines the storage interface for tidings' data layer.
type Store interface {
	Close() error

	// Articles
	InsertNew(candidates []Candidate) ([]Article, error)
	GetPage(page, perPage int) ([]Article, error)
	Latest(limit int) ([]Article, error)
	Count() (int, error)
	Find(url string) (*Article, error)
	LastCreatedAt() (*time.Time, error)

	// Publication dates
	MissingDates() ([]string, error)
	SetPublishedAt(url string, publishedAt time.Time) error

	// Summaries
	GetSummary(articleURL string) (*Summary, error)
	SaveSummary(summary *Summary) error
	ListSummaries(limit int) ([]SummaryWithArticle, error)
	CountSummaries() (int, error)
}
