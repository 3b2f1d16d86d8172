package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"database" toml:"database"`

	Source struct {
		Kind           string        `yaml:"kind" toml:"kind"` // "section" or "feed"
		BaseURL        string        `yaml:"base_url" toml:"base_url"`
		SectionPath    string        `yaml:"section_path" toml:"section_path"`
		FeedURL        string        `yaml:"feed_url,omitempty" toml:"feed_url"`
		UserAgent      string        `yaml:"user_agent" toml:"user_agent"`
		ListingTimeout time.Duration `yaml:"listing_timeout" toml:"listing_timeout"`
		ArticleTimeout time.Duration `yaml:"article_timeout" toml:"article_timeout"`
		ContentTimeout time.Duration `yaml:"content_timeout" toml:"content_timeout"`
	} `yaml:"source" toml:"source"`

	Ollama struct {
		BaseURL string        `yaml:"base_url" toml:"base_url"`
		Model   string        `yaml:"model" toml:"model"`
		Timeout time.Duration `yaml:"timeout" toml:"timeout"`
		// MaxContentChars bounds the article text sent to the model; 0 sends it whole.
		MaxContentChars int `yaml:"max_content_chars" toml:"max_content_chars"`
	} `yaml:"ollama" toml:"ollama"`

	Prompts struct {
		Summarization string `yaml:"summarization,omitempty" toml:"summarization"`
	} `yaml:"prompts,omitempty" toml:"prompts"`

	Temperatures struct {
		Summarization float64 `yaml:"summarization" toml:"summarization"`
	} `yaml:"temperatures,omitempty" toml:"temperatures"`

	Summaries struct {
		TopLimit           int           `yaml:"top_limit" toml:"top_limit"`
		RepopulateLimit    int           `yaml:"repopulate_limit" toml:"repopulate_limit"`
		RepopulateInterval time.Duration `yaml:"repopulate_interval" toml:"repopulate_interval"`
	} `yaml:"summaries" toml:"summaries"`

	Schedule struct {
		Check string `yaml:"check" toml:"check"`
	} `yaml:"schedule" toml:"schedule"`

	Web struct {
		Addr           string   `yaml:"addr" toml:"addr"`
		AdminSecret    string   `yaml:"admin_secret,omitempty" toml:"admin_secret"`
		AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	} `yaml:"web" toml:"web"`

	Log struct {
		Mode string `yaml:"mode" toml:"mode"` // "development" or "production"
	} `yaml:"log" toml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./tidings.db"
	cfg.Source.Kind = "section"
	cfg.Source.BaseURL = "https://www.christiantoday.co.kr"
	cfg.Source.SectionPath = "/sections/pd_19"
	cfg.Source.UserAgent = "Mozilla/5.0 (compatible; tidings/1.0)"
	cfg.Source.ListingTimeout = 10 * time.Second
	cfg.Source.ArticleTimeout = 10 * time.Second
	cfg.Source.ContentTimeout = 15 * time.Second
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "gemma3:4b"
	cfg.Ollama.Timeout = 2 * time.Minute
	cfg.Ollama.MaxContentChars = 6000
	cfg.Temperatures.Summarization = 0.3
	cfg.Summaries.TopLimit = 3
	cfg.Summaries.RepopulateLimit = 30
	cfg.Summaries.RepopulateInterval = 5 * time.Second
	cfg.Schedule.Check = "@every 10m"
	cfg.Web.Addr = ":8080"
	cfg.Web.AllowedOrigins = []string{"*"}
	cfg.Log.Mode = "production"
	return cfg
}

// LoadConfig reads a YAML or TOML config file over the defaults. The format
// is chosen by extension; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, or TOML when path ends in .toml.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var data []byte
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = []byte(buf.String())
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
