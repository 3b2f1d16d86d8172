package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings/internal/storage"
)

// SectionLister scrapes article links from a news section's HTML listing.
type SectionLister struct {
	base        *url.URL
	sectionPath string
	opts        Options
}

// NewSectionLister creates a lister for baseURL+sectionPath, e.g.
// https://www.christiantoday.co.kr + /sections/pd_19.
func NewSectionLister(baseURL, sectionPath string, opts Options) (*SectionLister, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if !strings.HasPrefix(sectionPath, "/") {
		sectionPath = "/" + sectionPath
	}
	return &SectionLister{
		base:        base,
		sectionPath: strings.TrimSuffix(sectionPath, "/"),
		opts:        opts.withDefaults(),
	}, nil
}

// ListingURL is the address of the section's front page.
func (l *SectionLister) ListingURL() string {
	return l.base.ResolveReference(&url.URL{Path: l.sectionPath}).String()
}

// ArchiveURL is the address of an older listing page (page 2 and up).
func (l *SectionLister) ArchiveURL(page int) string {
	return l.base.ResolveReference(&url.URL{Path: fmt.Sprintf("%s/page%d.htm", l.sectionPath, page)}).String()
}

// FetchListing returns the candidates on the section front page.
func (l *SectionLister) FetchListing(ctx context.Context) ([]storage.Candidate, error) {
	return l.fetch(ctx, l.ListingURL())
}

// FetchArchivePage returns the candidates on an older listing page.
func (l *SectionLister) FetchArchivePage(ctx context.Context, page int) ([]storage.Candidate, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid archive page %d", page)
	}
	if page == 1 {
		return l.FetchListing(ctx)
	}
	return l.fetch(ctx, l.ArchiveURL(page))
}

func (l *SectionLister) fetch(ctx context.Context, pageURL string) ([]storage.Candidate, error) {
	body, err := fetchPage(ctx, l.opts.Client, pageURL, l.opts.UserAgent, l.opts.ListingTimeout)
	if err != nil {
		return nil, err
	}
	candidates, err := ParseListing(bytes.NewReader(body), l.base, l.opts.Location)
	if err != nil {
		return nil, err
	}
	l.opts.Logger.Debug("parsed listing", zap.String("url", pageURL), zap.Int("count", len(candidates)))
	return candidates, nil
}

// ParseListing extracts news links from a section page. Featured articles
// (article h2 links) come first, then the regular list items. Relative
// links are resolved against base and only links into base's /news/ tree
// are kept. The result holds each URL once, in page order.
func ParseListing(r io.Reader, base *url.URL, loc *time.Location) ([]storage.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}
	if loc == nil {
		loc = KST
	}

	newsPrefix := strings.TrimPrefix(base.Host, "www.") + "/news/"
	var out []storage.Candidate
	seen := make(map[string]bool)
	add := func(href, title string, published *time.Time) {
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		full := u.String()
		if !strings.Contains(full, newsPrefix) || seen[full] {
			return
		}
		seen[full] = true
		out = append(out, storage.Candidate{URL: full, Title: title, PublishedAt: published})
	}

	doc.Find(`article h2 a[href*="/news/"]`).Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		title := cleanTitle(s.Text())
		if title == "" {
			title = storage.UntitledPlaceholder
		}
		add(href, title, findDate(s.Closest("article"), loc))
	})

	doc.Find("ul.l-list li").Each(func(_ int, li *goquery.Selection) {
		link := li.Find(`a[href*="/news/"]`).First()
		href, exists := link.Attr("href")
		if !exists || href == "" {
			return
		}
		add(href, listItemTitle(li, link), findDate(li, loc))
	})

	return out, nil
}

// listItemTitle prefers the link text, then a heading-like element, then
// whatever text the item carries outside its other links.
func listItemTitle(li, link *goquery.Selection) string {
	title := cleanTitle(link.Text())
	if title == "" || title == "..." {
		if heading := li.Find("h3, h4, strong, b, .title, .headline").First(); heading.Length() > 0 {
			title = cleanTitle(heading.Text())
		} else {
			rest := li.Clone()
			keep := rest.Find(`a[href*="/news/"]`).First()
			rest.Find("a").Each(func(_ int, a *goquery.Selection) {
				if !a.IsSelection(keep) {
					a.Remove()
				}
			})
			if text := cleanTitle(rest.Text()); utf8.RuneCountInString(text) > 10 {
				title = text
			}
		}
	}
	if title == "" || title == "..." {
		return storage.UntitledPlaceholder
	}
	return title
}

// cleanTitle collapses runs of whitespace, newlines included.
func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
