package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings/internal/storage"
)

var (
	// ErrNoContent means the article body could not be retrieved, so there
	// was nothing to summarize.
	ErrNoContent = errors.New("article content unavailable")
	// ErrMalformedResponse means the model answered with something other
	// than the expected JSON object.
	ErrMalformedResponse = errors.New("malformed summarizer response")
)

// defaultMaxContent bounds prompt content when no config is given.
const defaultMaxContent = 6000

// ContentFetcher supplies the body text of an article.
type ContentFetcher interface {
	FetchContent(ctx context.Context, articleURL string) (string, error)
}

// Annotation is the generated summary, keywords and Bible references for
// one article.
type Annotation struct {
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	BibleVerses []string `json:"bible_verses"`
}

type Summarizer struct {
	client  *api.Client
	model   string
	content ContentFetcher
	prompts *PromptLoader
	timeout time.Duration

	// maxContent is in runes; 0 means no bound.
	maxContent int
	logger     *zap.Logger
}

// NewSummarizer creates a summarizer backed by the Ollama server at baseURL.
// An empty baseURL defers to OLLAMA_HOST. config supplies prompt and
// temperature overrides and may be nil.
func NewSummarizer(baseURL, model string, content ContentFetcher, config *storage.Config, logger *zap.Logger) (*Summarizer, error) {
	var client *api.Client
	if baseURL == "" {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	} else {
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	}
	if content == nil {
		return nil, errors.New("content fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := 2 * time.Minute
	maxContent := defaultMaxContent
	if config != nil {
		if config.Ollama.Timeout > 0 {
			timeout = config.Ollama.Timeout
		}
		maxContent = max(config.Ollama.MaxContentChars, 0)
	}

	return &Summarizer{
		client:     client,
		model:      model,
		content:    content,
		prompts:    NewPromptLoader(config),
		timeout:    timeout,
		maxContent: maxContent,
		logger:     logger,
	}, nil
}

// Summarize fetches the article at articleURL and asks the model for its
// annotation. Any failure returns an error and no partial result.
func (s *Summarizer) Summarize(ctx context.Context, articleURL, title string) (*Annotation, error) {
	content, err := s.content.FetchContent(ctx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoContent, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}

	promptTemplate, err := s.prompts.GetPrompt(PromptTypeSummarization)
	if err != nil {
		return nil, fmt.Errorf("failed to load summarization prompt: %w", err)
	}
	prompt, err := ExecutePrompt(promptTemplate, map[string]any{
		"Title":   title,
		"Content": s.promptContent(content),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render summarization prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  s.model,
		Prompt: prompt,
		Format: json.RawMessage(`"json"`),
		Stream: new(bool), // false
		Options: map[string]any{
			"temperature": s.prompts.GetTemperature(PromptTypeSummarization),
		},
	}

	var fullResponse strings.Builder
	err = s.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("article summarization failed: %w", err)
	}

	annotation, err := ParseAnnotation(fullResponse.String())
	if err != nil {
		s.logger.Debug("rejected summarizer output", zap.String("url", articleURL), zap.String("response", truncateText(fullResponse.String(), 500)))
		return nil, err
	}
	return annotation, nil
}

func (s *Summarizer) promptContent(content string) string {
	if s.maxContent == 0 {
		return content
	}
	return truncateText(content, s.maxContent)
}

var plainText = bluemonday.StrictPolicy()

// ParseAnnotation validates a model response. The object must carry
// summary, keywords and bible_verses. A non-string or empty summary is
// rejected; list fields that are not arrays read as empty, while arrays
// holding anything but strings are rejected.
func ParseAnnotation(response string) (*Annotation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(response)), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, key := range []string{"summary", "keywords", "bible_verses"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
	}

	var summary string
	if err := json.Unmarshal(fields["summary"], &summary); err != nil {
		return nil, fmt.Errorf("%w: summary is not a string", ErrMalformedResponse)
	}
	summary = toPlainText(summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}

	keywords, err := parseList(fields["keywords"])
	if err != nil {
		return nil, fmt.Errorf("%w: keywords: %v", ErrMalformedResponse, err)
	}
	verses, err := parseList(fields["bible_verses"])
	if err != nil {
		return nil, fmt.Errorf("%w: bible_verses: %v", ErrMalformedResponse, err)
	}

	return &Annotation{Summary: summary, Keywords: keywords, BibleVerses: verses}, nil
}

func parseList(raw json.RawMessage) ([]string, error) {
	items := []string{}
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return items, nil
	}
	var parsed []string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	for _, p := range parsed {
		if p = toPlainText(p); p != "" {
			items = append(items, p)
		}
	}
	return items, nil
}

// toPlainText strips any markup the model echoed from the article.
func toPlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}

// truncateText truncates text to maxLen characters
func truncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	return string([]rune(text)[:maxLen]) + "..."
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	// Find first { and last }
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
