package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/tidings"
)

const serverVersion = "0.2.0"

// server holds the engine behind the MCP tools.
type server struct {
	engine *tidings.Engine
	poller *poller
}

// newServer registers the tidings tools on a fresh MCP server. Checks run
// through p so they never overlap the background loop.
func newServer(engine *tidings.Engine, p *poller) *mcp.Server {
	s := &server{engine: engine, poller: p}

	srv := mcp.NewServer(&mcp.Implementation{Name: "tidings", Version: serverVersion}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_page",
		Description: "List stored news articles newest first, one page at a time. Returns titles, URLs, publication dates and paging totals.",
	}, s.handleArticlesPage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_check",
		Description: "Fetch the news listing now and store any articles not seen before. Returns the newly stored articles.",
	}, s.handleArticlesCheck)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "summary_get",
		Description: "Get the cached summary, keywords and Bible verses for an article. Does not generate one.",
	}, s.handleSummaryGet)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "summary_generate",
		Description: "Summarize an article with the local model, reusing the cached summary unless force is set. Can take a minute.",
	}, s.handleSummaryGenerate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "stats",
		Description: "Show how many articles and summaries are stored and when the last new article arrived.",
	}, s.handleStats)

	return srv
}

func (s *server) handleArticlesPage(ctx context.Context, req *mcp.CallToolRequest, in articlesPageInput) (*mcp.CallToolResult, any, error) {
	page, perPage := 1, 0
	if in.Page != nil {
		page = *in.Page
	}
	if in.PerPage != nil {
		perPage = *in.PerPage
	}

	result, err := s.engine.Page(page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return mcpJSON(result)
}

func (s *server) handleArticlesCheck(ctx context.Context, req *mcp.CallToolRequest, in emptyInput) (*mcp.CallToolResult, any, error) {
	var result *tidings.CheckResult
	var err error
	if s.poller != nil {
		result, err = s.poller.poll(ctx)
	} else {
		result, err = s.engine.CheckForNew(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	return mcpJSON(result)
}

func (s *server) handleSummaryGet(ctx context.Context, req *mcp.CallToolRequest, in summaryGetInput) (*mcp.CallToolResult, any, error) {
	if in.URL == "" {
		return nil, nil, errors.New("url is required")
	}
	summary, err := s.engine.Summary(in.URL)
	if err != nil {
		return nil, nil, err
	}
	if summary == nil {
		return mcpText("No summary stored for %s", in.URL), nil, nil
	}
	return mcpJSON(summary)
}

func (s *server) handleSummaryGenerate(ctx context.Context, req *mcp.CallToolRequest, in summaryGenerateInput) (*mcp.CallToolResult, any, error) {
	if in.URL == "" {
		return nil, nil, errors.New("url is required")
	}
	title := ""
	if in.Title != nil {
		title = *in.Title
	}

	var result *tidings.SummaryResult
	var err error
	if in.Force != nil && *in.Force {
		result, err = s.engine.ForceRegenerate(ctx, in.URL, title)
	} else {
		result, err = s.engine.GetOrCreateSummary(ctx, in.URL, title)
	}
	if err != nil {
		return nil, nil, err
	}

	switch result.Outcome {
	case tidings.SummaryNotFound:
		return mcpError("article not found: %s", in.URL), nil, nil
	case tidings.SummaryFailed:
		return mcpError("summary generation failed: %v", result.Err), nil, nil
	}
	return mcpJSON(struct {
		AlreadyExisted bool             `json:"already_existed"`
		Summary        *tidings.Summary `json:"summary"`
	}{result.AlreadyExisted(), result.Summary})
}

func (s *server) handleStats(ctx context.Context, req *mcp.CallToolRequest, in emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := s.engine.Stats()
	if err != nil {
		return nil, nil, err
	}
	return mcpJSON(stats)
}

func mcpText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func mcpJSON(data any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func mcpError(format string, args ...any) *mcp.CallToolResult {
	res := mcpText(format, args...)
	res.IsError = true
	return res
}
