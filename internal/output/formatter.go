package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matthewjhunter/tidings"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputCheckResult outputs the result of an ingestion pass
func (f *Formatter) OutputCheckResult(result *tidings.CheckResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "status=%s\n", result.Status)
		fmt.Fprintf(f.out, "found=%d\n", result.Found)
		fmt.Fprintf(f.out, "inserted=%d\n", len(result.Inserted))
		for _, a := range result.Inserted {
			fmt.Fprintf(f.out, "new\ttitle=%s\turl=%s\n", a.Title, a.URL)
		}
		return nil
	case FormatHuman:
		if result.Status == tidings.CheckFetchFailed {
			fmt.Fprintln(f.out, "Could not fetch the listing (request failed or no articles found)")
			return nil
		}
		if len(result.Inserted) == 0 {
			fmt.Fprintf(f.out, "No new articles (%d on the listing)\n", result.Found)
			return nil
		}
		fmt.Fprintf(f.out, "%d new articles:\n", len(result.Inserted))
		for _, a := range result.Inserted {
			fmt.Fprintf(f.out, "  • %s\n    %s\n", a.Title, a.URL)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPage outputs one page of articles
func (f *Formatter) OutputPage(page *tidings.Page) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(page)
	case FormatText:
		fmt.Fprintf(f.out, "page=%d\tper_page=%d\ttotal=%d\ttotal_pages=%d\n",
			page.Page, page.PerPage, page.Total, page.TotalPages)
		for _, a := range page.Articles {
			fmt.Fprintf(f.out, "title=%s\turl=%s\tpublished=%s\n", a.Title, a.URL, formatTime(a.PublishedAt))
		}
		return nil
	case FormatHuman:
		if len(page.Articles) == 0 {
			fmt.Fprintln(f.out, "No articles")
			return nil
		}
		fmt.Fprintf(f.out, "Articles (page %d of %d, %d total):\n\n", page.Page, page.TotalPages, page.Total)
		for _, a := range page.Articles {
			fmt.Fprintf(f.out, "Title: %s\n", a.Title)
			fmt.Fprintf(f.out, "URL: %s\n", a.URL)
			if a.PublishedAt != nil {
				fmt.Fprintf(f.out, "Published: %s\n", a.PublishedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputBackfill outputs a date backfill result
func (f *Formatter) OutputBackfill(result *tidings.BackfillResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "candidates=%d\nupdated=%d\n", result.Candidates, result.Updated)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Updated publication dates for %d of %d articles\n", result.Updated, result.Candidates)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputSummaryResult outputs the outcome of a single summary request
func (f *Formatter) OutputSummaryResult(articleURL string, result *tidings.SummaryResult) error {
	switch f.format {
	case FormatJSON:
		payload := struct {
			*tidings.SummaryResult
			ArticleURL     string `json:"article_url"`
			AlreadyExisted bool   `json:"already_existed"`
			Error          string `json:"error,omitempty"`
		}{SummaryResult: result, ArticleURL: articleURL, AlreadyExisted: result.AlreadyExisted()}
		if result.Err != nil {
			payload.Error = result.Err.Error()
		}
		return json.NewEncoder(f.out).Encode(payload)
	case FormatText:
		fmt.Fprintf(f.out, "outcome=%s\turl=%s\n", result.Outcome, articleURL)
		if result.Summary != nil {
			f.writeSummaryText(*result.Summary)
		}
		return nil
	case FormatHuman:
		switch result.Outcome {
		case tidings.SummaryNotFound:
			fmt.Fprintf(f.out, "Article not found: %s\n", articleURL)
		case tidings.SummaryFailed:
			fmt.Fprintf(f.out, "Summary generation failed for %s: %v\n", articleURL, result.Err)
		default:
			if result.AlreadyExisted() {
				fmt.Fprintln(f.out, "(cached summary)")
			}
			f.writeSummaryHuman(*result.Summary)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputSummaries outputs a list of summaries
func (f *Formatter) OutputSummaries(summaries []tidings.Summary) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(summaries)
	case FormatText:
		for _, s := range summaries {
			f.writeSummaryText(s)
		}
		return nil
	case FormatHuman:
		if len(summaries) == 0 {
			fmt.Fprintln(f.out, "No summaries")
			return nil
		}
		for _, s := range summaries {
			f.writeSummaryHuman(s)
			fmt.Fprintln(f.out, "")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func (f *Formatter) writeSummaryText(s tidings.Summary) {
	fmt.Fprintf(f.out, "url=%s\ttitle=%s\tkeywords=%s\tverses=%s\tsummary=%s\n",
		s.ArticleURL, s.Title, strings.Join(s.Keywords, ","), strings.Join(s.BibleVerses, ","),
		strings.ReplaceAll(s.Summary, "\n", " "))
}

func (f *Formatter) writeSummaryHuman(s tidings.Summary) {
	fmt.Fprintf(f.out, "📰 %s\n", s.Title)
	fmt.Fprintln(f.out, strings.Repeat("=", 70))
	fmt.Fprintf(f.out, "%s\n", s.ArticleURL)
	fmt.Fprintf(f.out, "\n%s\n\n", truncate(s.Summary, 600))
	if len(s.Keywords) > 0 {
		fmt.Fprintf(f.out, "Keywords: %s\n", strings.Join(s.Keywords, ", "))
	}
	if len(s.BibleVerses) > 0 {
		fmt.Fprintf(f.out, "Verses: %s\n", strings.Join(s.BibleVerses, ", "))
	}
}

// OutputRepopulate outputs a bulk regeneration result
func (f *Formatter) OutputRepopulate(result *tidings.RepopulateResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "total=%d\nprocessed=%d\nfailed=%d\n", result.Total, result.Processed, result.Failed)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Regenerated %d of %d summaries\n", result.Processed, result.Total)
		for _, u := range result.FailedURL {
			fmt.Fprintf(f.out, "  failed: %s\n", u)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStats outputs collection statistics
func (f *Formatter) OutputStats(stats *tidings.Stats) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(stats)
	case FormatText:
		fmt.Fprintf(f.out, "total_articles=%d\ntotal_summaries=%d\nlast_updated=%s\nsource=%s\n",
			stats.TotalArticles, stats.TotalSummaries, formatTime(stats.LastUpdated), stats.Source)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%d articles, %d summaries\n", stats.TotalArticles, stats.TotalSummaries)
		if stats.LastUpdated != nil {
			fmt.Fprintf(f.out, "Last new article: %s\n", stats.LastUpdated.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(f.out, "Source: %s\n", stats.Source)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...any) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...any) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
