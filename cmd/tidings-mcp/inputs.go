package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type articlesPageInput struct {
	Page    *int `json:"page,omitempty"     jsonschema:"Page number starting at 1 (default 1)"`
	PerPage *int `json:"per_page,omitempty" jsonschema:"Articles per page, 1 to 100 (default 20)"`
}

type summaryGetInput struct {
	URL string `json:"url" jsonschema:"The article URL as stored"`
}

type summaryGenerateInput struct {
	URL   string  `json:"url"             jsonschema:"The article URL as stored. Use articles_page to find it."`
	Title *string `json:"title,omitempty" jsonschema:"Optional title for the prompt. If omitted the stored title is used."`
	Force *bool   `json:"force,omitempty" jsonschema:"Regenerate even if a summary is already cached"`
}

type emptyInput struct{}
