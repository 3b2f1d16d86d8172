package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// MinContentLength is the article body length, in characters, a page must
// exceed to count as having content.
const MinContentLength = 100

// ErrNoContent means the page was fetched but carried no usable article body.
var ErrNoContent = errors.New("no article content")

// ArticleFetcher reads individual article pages for their publication date
// and body text.
type ArticleFetcher struct {
	contentSelector string
	opts            Options
}

// NewArticleFetcher creates a fetcher that reads article bodies from
// contentSelector (".article-content" when empty).
func NewArticleFetcher(contentSelector string, opts Options) *ArticleFetcher {
	if contentSelector == "" {
		contentSelector = ".article-content"
	}
	return &ArticleFetcher{contentSelector: contentSelector, opts: opts.withDefaults()}
}

// PublishedAt extracts the publication date of the article at articleURL.
// A page without a recognizable date yields nil and no error.
func (f *ArticleFetcher) PublishedAt(ctx context.Context, articleURL string) (*time.Time, error) {
	body, err := fetchPage(ctx, f.opts.Client, articleURL, f.opts.UserAgent, f.opts.ArticleTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article %s: %w", articleURL, err)
	}
	doc.Find("script, style").Remove()
	return findDate(doc.Selection, f.opts.Location), nil
}

// FetchContent returns the plain-text body of the article at articleURL,
// one paragraph per line. The configured content selector is tried first;
// readability extraction covers pages laid out differently.
func (f *ArticleFetcher) FetchContent(ctx context.Context, articleURL string) (string, error) {
	body, err := fetchPage(ctx, f.opts.Client, articleURL, f.opts.UserAgent, f.opts.ContentTimeout)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse article %s: %w", articleURL, err)
	}

	if sel := doc.Find(f.contentSelector).First(); sel.Length() > 0 {
		sel.Find("script, style").Remove()
		var blocks []string
		sel.Contents().Each(func(_ int, s *goquery.Selection) {
			blocks = append(blocks, s.Text())
		})
		if text := joinLines(blocks); utf8.RuneCountInString(text) > MinContentLength {
			return text, nil
		}
	}

	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("invalid article URL: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		f.opts.Logger.Debug("readability failed", zap.String("url", articleURL), zap.Error(err))
		return "", ErrNoContent
	}
	if text := joinLines([]string{article.TextContent}); utf8.RuneCountInString(text) > MinContentLength {
		return text, nil
	}
	return "", ErrNoContent
}

// joinLines trims every line of every block and drops the empty ones.
func joinLines(blocks []string) string {
	var lines []string
	for _, b := range blocks {
		for _, line := range strings.Split(b, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
