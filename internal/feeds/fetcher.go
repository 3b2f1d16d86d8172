package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; tidings/1.0)"

// maxPageBytes caps how much of a page is read into memory.
const maxPageBytes = 5 << 20

// Options configures the HTTP side of the listing and article fetchers.
type Options struct {
	UserAgent      string
	ListingTimeout time.Duration
	ArticleTimeout time.Duration
	ContentTimeout time.Duration
	Location       *time.Location
	Client         *http.Client
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.ListingTimeout <= 0 {
		o.ListingTimeout = 10 * time.Second
	}
	if o.ArticleTimeout <= 0 {
		o.ArticleTimeout = 10 * time.Second
	}
	if o.ContentTimeout <= 0 {
		o.ContentTimeout = 15 * time.Second
	}
	if o.Location == nil {
		o.Location = KST
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// fetchPage GETs pageURL with its own timeout and returns the body.
// Non-200 responses are errors.
func fetchPage(ctx context.Context, client *http.Client, pageURL, userAgent string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	return body, nil
}
