package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewjhunter/tidings/internal/storage"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     *Annotation
		wantErr  bool
	}{
		{
			name:     "well formed",
			response: `{"summary":"요약","keywords":["기도","은혜"],"bible_verses":["시편 1:1"]}`,
			want:     &Annotation{Summary: "요약", Keywords: []string{"기도", "은혜"}, BibleVerses: []string{"시편 1:1"}},
		},
		{
			name:     "surrounding prose",
			response: "Here you go:\n```json\n{\"summary\":\"s\",\"keywords\":[],\"bible_verses\":[]}\n```",
			want:     &Annotation{Summary: "s", Keywords: []string{}, BibleVerses: []string{}},
		},
		{
			name:     "non-list fields coerced to empty",
			response: `{"summary":"s","keywords":"기도, 은혜","bible_verses":null}`,
			want:     &Annotation{Summary: "s", Keywords: []string{}, BibleVerses: []string{}},
		},
		{
			name:     "markup stripped",
			response: `{"summary":"<p>말씀 &amp; 찬양</p><script>x()</script>","keywords":["<b>기도</b>",""],"bible_verses":[]}`,
			want:     &Annotation{Summary: "말씀 & 찬양", Keywords: []string{"기도"}, BibleVerses: []string{}},
		},
		{name: "not json", response: "죄송합니다, 요약할 수 없습니다.", wantErr: true},
		{name: "missing key", response: `{"summary":"s","keywords":[]}`, wantErr: true},
		{name: "summary not string", response: `{"summary":["s"],"keywords":[],"bible_verses":[]}`, wantErr: true},
		{name: "empty summary", response: `{"summary":"  ","keywords":[],"bible_verses":[]}`, wantErr: true},
		{name: "list of numbers", response: `{"summary":"s","keywords":[1,2],"bible_verses":[]}`, wantErr: true},
		{name: "top-level array", response: `[{"summary":"s"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnnotation(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedResponse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubContent struct {
	text string
	err  error
}

func (s stubContent) FetchContent(ctx context.Context, articleURL string) (string, error) {
	return s.text, s.err
}

// fakeOllama answers /api/generate with response and records the request.
func fakeOllama(t *testing.T, response string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		json.NewEncoder(w).Encode(map[string]any{
			"model":    "test-model",
			"response": response,
			"done":     true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSummarizer_Summarize(t *testing.T) {
	var req map[string]any
	srv := fakeOllama(t, `{"summary":"다니엘기도회 요약","keywords":["기도"],"bible_verses":["다니엘 6:10"]}`, &req)

	s, err := NewSummarizer(srv.URL, "test-model", stubContent{text: "기사 본문입니다."}, nil, nil)
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), "https://example.com/news/1", "기도의 자리")
	require.NoError(t, err)
	assert.Equal(t, "다니엘기도회 요약", got.Summary)
	assert.Equal(t, []string{"기도"}, got.Keywords)
	assert.Equal(t, []string{"다니엘 6:10"}, got.BibleVerses)

	assert.Equal(t, "test-model", req["model"])
	assert.Equal(t, "json", req["format"])
	prompt, _ := req["prompt"].(string)
	assert.Contains(t, prompt, "기도의 자리")
	assert.Contains(t, prompt, "기사 본문입니다.")
}

func TestSummarizer_ContentBound(t *testing.T) {
	body := strings.Repeat("가", 80)
	tests := []struct {
		name     string
		maxChars int
		want     string
		dropped  bool
	}{
		{name: "bounded", maxChars: 50, want: strings.Repeat("가", 50) + "...", dropped: true},
		{name: "unbounded", maxChars: 0, want: body},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req map[string]any
			srv := fakeOllama(t, `{"summary":"s","keywords":[],"bible_verses":[]}`, &req)

			cfg := storage.DefaultConfig()
			cfg.Ollama.MaxContentChars = tt.maxChars
			s, err := NewSummarizer(srv.URL, "m", stubContent{text: body}, cfg, nil)
			require.NoError(t, err)

			_, err = s.Summarize(context.Background(), "https://example.com/news/1", "t")
			require.NoError(t, err)

			prompt, _ := req["prompt"].(string)
			assert.Contains(t, prompt, tt.want)
			assert.Equal(t, tt.dropped, !strings.Contains(prompt, body))
		})
	}
}

func TestSummarizer_MalformedResponse(t *testing.T) {
	srv := fakeOllama(t, "not json at all", nil)
	s, err := NewSummarizer(srv.URL, "m", stubContent{text: "본문"}, nil, nil)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "u", "t")
	assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
}

func TestSummarizer_NoContent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	s, err := NewSummarizer(srv.URL, "m", stubContent{err: errors.New("404")}, nil, nil)
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), "u", "t")
	assert.True(t, errors.Is(err, ErrNoContent), "got %v", err)

	s, err = NewSummarizer(srv.URL, "m", stubContent{text: "  "}, nil, nil)
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), "u", "t")
	assert.True(t, errors.Is(err, ErrNoContent), "got %v", err)

	assert.False(t, called, "model must not be called without content")
}

func TestSummarizer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	s, err := NewSummarizer(srv.URL, "m", stubContent{text: "본문"}, nil, nil)
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), "u", "t")
	assert.Error(t, err)
}

func TestNewSummarizer_RequiresContent(t *testing.T) {
	_, err := NewSummarizer("http://localhost:11434", "m", nil, nil, nil)
	assert.Error(t, err)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "기도", truncateText("기도", 5))
	got := truncateText(strings.Repeat("가", 10), 3)
	assert.Equal(t, "가가가...", got)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("prefix {\"a\":1} suffix"))
	assert.Equal(t, "no braces", extractJSON("no braces"))
}
