package tidings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matthewjhunter/tidings/internal/ai"
	"github.com/matthewjhunter/tidings/internal/storage"
)

// GetOrCreateSummary returns the cached summary of an article, generating
// and storing it on first request. An empty title falls back to the stored
// one. Generation failures leave the cache untouched and are reported as
// SummaryFailed.
func (e *Engine) GetOrCreateSummary(ctx context.Context, articleURL, title string) (*SummaryResult, error) {
	article, err := e.store.Find(articleURL)
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	if article == nil {
		return &SummaryResult{Outcome: SummaryNotFound}, nil
	}

	existing, err := e.store.GetSummary(articleURL)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if existing != nil {
		return &SummaryResult{Outcome: SummaryExisted, Summary: toSummary(*existing, article.Title)}, nil
	}

	return e.generate(ctx, article, title)
}

// ForceRegenerate always calls the summarizer and overwrites any cached
// summary. The previous summary survives a failed regeneration.
func (e *Engine) ForceRegenerate(ctx context.Context, articleURL, title string) (*SummaryResult, error) {
	article, err := e.store.Find(articleURL)
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	if article == nil {
		return &SummaryResult{Outcome: SummaryNotFound}, nil
	}
	return e.generate(ctx, article, title)
}

func (e *Engine) generate(ctx context.Context, article *storage.Article, title string) (*SummaryResult, error) {
	if strings.TrimSpace(title) == "" {
		title = article.Title
	}

	annotation, err := e.summarizer.Summarize(ctx, article.URL, title)
	if err == nil && (annotation == nil || strings.TrimSpace(annotation.Summary) == "") {
		err = ai.ErrMalformedResponse
	}
	if err != nil {
		e.logger.Warn("summary generation failed", zap.String("url", article.URL), zap.Error(err))
		return &SummaryResult{Outcome: SummaryFailed, Err: err}, nil
	}

	sum := &storage.Summary{
		ArticleURL:  article.URL,
		Summary:     annotation.Summary,
		Keywords:    nonNil(annotation.Keywords),
		BibleVerses: nonNil(annotation.BibleVerses),
	}
	if err := e.store.SaveSummary(sum); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	e.logger.Info("generated summary", zap.String("url", article.URL))
	return &SummaryResult{Outcome: SummaryGenerated, Summary: toSummary(*sum, article.Title)}, nil
}

// TopSummaries returns summaries for the limit newest articles, in that
// order, generating any that are missing. Articles whose generation fails
// are left out.
func (e *Engine) TopSummaries(ctx context.Context, limit int) ([]Summary, error) {
	articles, err := e.store.Latest(limit)
	if err != nil {
		return nil, fmt.Errorf("get latest articles: %w", err)
	}

	out := []Summary{}
	for i := range articles {
		article := &articles[i]
		existing, err := e.store.GetSummary(article.URL)
		if err != nil {
			return nil, fmt.Errorf("get summary: %w", err)
		}
		if existing != nil {
			out = append(out, *toSummary(*existing, article.Title))
			continue
		}

		result, err := e.generate(ctx, article, article.Title)
		if err != nil {
			return nil, err
		}
		if result.Outcome == SummaryGenerated {
			out = append(out, *result.Summary)
		}
	}
	return out, nil
}

// RepopulateSummaries regenerates the summaries of the limit newest
// articles, overwriting cached ones. Summarizer calls are spaced by the
// configured interval. Cancelling ctx stops the run between articles.
func (e *Engine) RepopulateSummaries(ctx context.Context, limit int) (*RepopulateResult, error) {
	articles, err := e.store.Latest(limit)
	if err != nil {
		return nil, fmt.Errorf("get latest articles: %w", err)
	}

	limiter := rate.NewLimiter(rate.Every(e.pace), 1)
	result := &RepopulateResult{Total: len(articles)}
	for i := range articles {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}
		article := &articles[i]
		r, err := e.generate(ctx, article, article.Title)
		if err != nil {
			return result, err
		}
		if r.Outcome == SummaryGenerated {
			result.Processed++
		} else {
			result.Failed++
			result.FailedURL = append(result.FailedURL, article.URL)
		}
	}
	e.logger.Info("repopulated summaries", zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	return result, nil
}

// Summary returns the cached summary of an article, or nil if none exists.
func (e *Engine) Summary(articleURL string) (*Summary, error) {
	sum, err := e.store.GetSummary(articleURL)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if sum == nil {
		return nil, nil
	}
	article, err := e.store.Find(articleURL)
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	title := ""
	if article != nil {
		title = article.Title
	}
	return toSummary(*sum, title), nil
}

// Summaries lists cached summaries, most recently generated first.
func (e *Engine) Summaries(limit int) ([]Summary, error) {
	list, err := e.store.ListSummaries(limit)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		out = append(out, *toSummary(s.Summary, s.Title))
	}
	return out, nil
}

func toSummary(s storage.Summary, title string) *Summary {
	return &Summary{
		ArticleURL:  s.ArticleURL,
		Title:       title,
		Summary:     s.Summary,
		Keywords:    nonNil(s.Keywords),
		BibleVerses: nonNil(s.BibleVerses),
		CreatedAt:   s.CreatedAt,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
