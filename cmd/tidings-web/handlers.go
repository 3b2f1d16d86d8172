package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
	"github.com/matthewjhunter/tidings/internal/storage"
)

type handlers struct {
	engine *tidings.Engine
	cfg    *storage.Config
	logger *zap.Logger
}

const timestampLayout = "2006-01-02 15:04:05"

// queryInt reads an integer query parameter, writing a 400 and returning
// false when it is malformed.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid %s: %q", name, raw)})
		return 0, false
	}
	return n, true
}

// articleURL extracts the article URL. The url query parameter takes
// precedence; otherwise the trailing wildcard is used and the request's
// query string, minus the handler's own title parameter, is reattached.
func articleURL(c *gin.Context) (string, bool) {
	if u := c.Query("url"); u != "" {
		return u, true
	}

	u := strings.TrimPrefix(c.Param("url"), "/")
	if u == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "article url is required"})
		return "", false
	}
	if q := articleQuery(c.Request.URL.RawQuery); q != "" {
		u += "?" + q
	}
	return u, true
}

// articleQuery drops title= pairs from rawQuery and keeps the rest verbatim.
func articleQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if key == "title" || pair == "" {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func (h *handlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("%s: %v", msg, err)})
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Format(time.RFC3339)})
}

func (h *handlers) handleCheck(c *gin.Context) {
	result, err := h.engine.CheckForNew(c.Request.Context())
	if err != nil {
		h.internalError(c, "check failed", err)
		return
	}

	if result.Status == tidings.CheckFetchFailed {
		c.JSON(http.StatusOK, gin.H{
			"success":      false,
			"message":      "could not fetch articles from the source",
			"new_articles": []tidings.Article{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("found %d new articles", len(result.Inserted)),
		"new_articles": result.Inserted,
		"total_found":  result.Found,
		"checked_at":   result.CheckedAt.Local().Format(timestampLayout),
	})
}

func (h *handlers) handleArticles(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	perPage, ok := queryInt(c, "per_page", storage.DefaultPerPage)
	if !ok {
		return
	}

	result, err := h.engine.Page(page, perPage)
	if err != nil {
		h.internalError(c, "list articles failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) handleLatest(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}

	articles, err := h.engine.Latest(limit)
	if err != nil {
		h.internalError(c, "list articles failed", err)
		return
	}
	stats, err := h.engine.Stats()
	if err != nil {
		h.internalError(c, "count articles failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"articles":     articles,
		"count":        len(articles),
		"total_stored": stats.TotalArticles,
	})
}

func (h *handlers) handleStats(c *gin.Context) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.internalError(c, "stats failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) handleSummaries(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}

	summaries, err := h.engine.Summaries(limit)
	if err != nil {
		h.internalError(c, "list summaries failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries, "count": len(summaries)})
}

func (h *handlers) handleSummary(c *gin.Context) {
	u, ok := articleURL(c)
	if !ok {
		return
	}

	summary, err := h.engine.Summary(u)
	if err != nil {
		h.internalError(c, "get summary failed", err)
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "summary not found"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handlers) handleSummarizeTop(c *gin.Context) {
	limit, ok := queryInt(c, "limit", h.cfg.Summaries.TopLimit)
	if !ok {
		return
	}

	summaries, err := h.engine.TopSummaries(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "summarize failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("summarized %d articles", len(summaries)),
		"summaries":    summaries,
		"generated_at": time.Now().Format(timestampLayout),
	})
}

func (h *handlers) handleSummarize(c *gin.Context) {
	u, ok := articleURL(c)
	if !ok {
		return
	}
	result, err := h.engine.GetOrCreateSummary(c.Request.Context(), u, c.Query("title"))
	h.writeSummaryResult(c, result, err)
}

func (h *handlers) handleRegenerate(c *gin.Context) {
	u, ok := articleURL(c)
	if !ok {
		return
	}
	result, err := h.engine.ForceRegenerate(c.Request.Context(), u, c.Query("title"))
	h.writeSummaryResult(c, result, err)
}

func (h *handlers) writeSummaryResult(c *gin.Context, result *tidings.SummaryResult, err error) {
	if err != nil {
		h.internalError(c, "summarize failed", err)
		return
	}

	switch result.Outcome {
	case tidings.SummaryNotFound:
		c.JSON(http.StatusNotFound, gin.H{"detail": "article not found"})
	case tidings.SummaryFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("summary generation failed: %v", result.Err)})
	default:
		message := "summary generated"
		if result.AlreadyExisted() {
			message = "summary already exists"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"already_existed": result.AlreadyExisted(),
			"message":         message,
			"summary":         result.Summary,
			"generated_at":    time.Now().Format(timestampLayout),
		})
	}
}

func (h *handlers) handleBackfill(c *gin.Context) {
	result, err := h.engine.Backfill(c.Request.Context())
	if err != nil {
		h.internalError(c, "backfill failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
