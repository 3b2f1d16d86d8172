package ai

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/matthewjhunter/tidings/internal/storage"
)

// Embedded default prompts
//
//go:embed prompts/summarization.txt
var defaultSummarizationPrompt string

// PromptType represents the type of AI prompt
type PromptType string

const (
	PromptTypeSummarization PromptType = "summarization"
)

// PromptLoader resolves prompts with 2-tier fallback: config file -> embedded default
type PromptLoader struct {
	config *storage.Config
}

// NewPromptLoader creates a new prompt loader. config may be nil.
func NewPromptLoader(config *storage.Config) *PromptLoader {
	return &PromptLoader{config: config}
}

// GetPrompt returns the template for promptType.
func (pl *PromptLoader) GetPrompt(promptType PromptType) (string, error) {
	if pl.config != nil {
		var configPrompt string
		switch promptType {
		case PromptTypeSummarization:
			configPrompt = pl.config.Prompts.Summarization
		}
		if strings.TrimSpace(configPrompt) != "" {
			return configPrompt, nil
		}
	}

	switch promptType {
	case PromptTypeSummarization:
		return defaultSummarizationPrompt, nil
	default:
		return "", fmt.Errorf("unknown prompt type: %s", promptType)
	}
}

// GetTemperature gets the temperature for a prompt type with fallback
// Priority: config file -> default
func (pl *PromptLoader) GetTemperature(promptType PromptType) float64 {
	if pl.config != nil {
		var configTemp float64
		switch promptType {
		case PromptTypeSummarization:
			configTemp = pl.config.Temperatures.Summarization
		}
		if configTemp > 0 {
			return configTemp
		}
	}

	switch promptType {
	case PromptTypeSummarization:
		return 0.3
	default:
		return 0.5
	}
}

// ExecutePrompt renders a prompt template with the given data
func ExecutePrompt(promptTemplate string, data any) (string, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
