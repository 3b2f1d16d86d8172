package feeds

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings/internal/storage"
)

// ErrNoArchive is returned by listers that cannot page back in time.
var ErrNoArchive = errors.New("listing source has no archive pages")

// FeedLister reads candidates from an RSS or Atom feed instead of the
// section HTML. Feeds only expose their current window of items.
type FeedLister struct {
	feedURL string
	parser  *gofeed.Parser
	opts    Options
}

// NewFeedLister creates a lister for the feed at feedURL.
func NewFeedLister(feedURL string, opts Options) *FeedLister {
	opts = opts.withDefaults()
	parser := gofeed.NewParser()
	parser.UserAgent = opts.UserAgent
	return &FeedLister{feedURL: feedURL, parser: parser, opts: opts}
}

// FetchListing returns one candidate per feed item with a link.
func (l *FeedLister) FetchListing(ctx context.Context) ([]storage.Candidate, error) {
	body, err := fetchPage(ctx, l.opts.Client, l.feedURL, l.opts.UserAgent, l.opts.ListingTimeout)
	if err != nil {
		return nil, err
	}

	parsed, err := l.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", l.feedURL, err)
	}

	seen := make(map[string]bool)
	var out []storage.Candidate
	for _, item := range parsed.Items {
		if item.Link == "" || seen[item.Link] {
			continue
		}
		seen[item.Link] = true

		c := storage.Candidate{URL: item.Link, Title: cleanTitle(item.Title)}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			c.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			c.PublishedAt = &t
		}
		if c.Title == "" {
			c.Title = storage.UntitledPlaceholder
		}
		out = append(out, c)
	}
	l.opts.Logger.Debug("parsed feed", zap.String("url", l.feedURL), zap.Int("count", len(out)))
	return out, nil
}

// FetchArchivePage serves page 1 from the feed and fails for older pages.
func (l *FeedLister) FetchArchivePage(ctx context.Context, page int) ([]storage.Candidate, error) {
	if page == 1 {
		return l.FetchListing(ctx)
	}
	return nil, ErrNoArchive
}
