package ai

import (
	"strings"
	"testing"

	"github.com/matthewjhunter/tidings/internal/storage"
)

func TestGetPrompt_EmbeddedDefault(t *testing.T) {
	pl := NewPromptLoader(nil)

	prompt, err := pl.GetPrompt(PromptTypeSummarization)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	for _, want := range []string{"{{.Title}}", "{{.Content}}", `"bible_verses"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("embedded prompt missing %s", want)
		}
	}
}

func TestGetPrompt_ConfigOverride(t *testing.T) {
	config := &storage.Config{}
	config.Prompts.Summarization = "custom {{.Title}}"

	pl := NewPromptLoader(config)
	prompt, err := pl.GetPrompt(PromptTypeSummarization)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if prompt != "custom {{.Title}}" {
		t.Errorf("expected config override, got: %q", prompt)
	}
}

func TestGetPrompt_BlankConfigFallsBack(t *testing.T) {
	config := &storage.Config{}
	config.Prompts.Summarization = "   \n"

	prompt, err := NewPromptLoader(config).GetPrompt(PromptTypeSummarization)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if prompt != defaultSummarizationPrompt {
		t.Error("blank config prompt should fall back to the embedded default")
	}
}

func TestGetPrompt_UnknownType(t *testing.T) {
	if _, err := NewPromptLoader(nil).GetPrompt("nope"); err == nil {
		t.Error("expected error for unknown prompt type")
	}
}

func TestGetTemperature(t *testing.T) {
	pl := NewPromptLoader(nil)
	if got := pl.GetTemperature(PromptTypeSummarization); got != 0.3 {
		t.Errorf("default temperature = %v, want 0.3", got)
	}

	config := &storage.Config{}
	config.Temperatures.Summarization = 0.7
	if got := NewPromptLoader(config).GetTemperature(PromptTypeSummarization); got != 0.7 {
		t.Errorf("config temperature = %v, want 0.7", got)
	}
}

func TestExecutePrompt(t *testing.T) {
	out, err := ExecutePrompt("제목: {{.Title}} / {{.Content}}", map[string]any{"Title": "기도", "Content": "본문"})
	if err != nil {
		t.Fatalf("ExecutePrompt failed: %v", err)
	}
	if out != "제목: 기도 / 본문" {
		t.Errorf("got %q", out)
	}

	if _, err := ExecutePrompt("{{.Title", nil); err == nil {
		t.Error("expected parse error for broken template")
	}
}
