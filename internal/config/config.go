// Package config loads and defaults her's configuration: §6's recognised
// environment inputs, the embedding/store backends, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all her configuration.
type Config struct {
	// ModelsDir points at embedder assets; its presence does not itself
	// enable semantic mode (UseSemanticSearch is the explicit switch) but
	// internal/embedding watches it and logs files being created, removed
	// or modified there (and warns if the watch cannot be set up).
	ModelsDir string `yaml:"models_dir"`

	// CacheDir houses the SQLite databases (promotion store, embedding
	// cache) and, when debug mode is on, the category log files.
	CacheDir string `yaml:"cache_dir"`

	UseSemanticSearch bool `yaml:"use_semantic_search"`
	DisableHeuristics bool `yaml:"disable_heuristics"`

	Browser   BrowserConfig   `yaml:"browser"`
	Limits    LimitsConfig    `yaml:"limits"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrowserConfig configures the driver (§6, §5 timeouts).
type BrowserConfig struct {
	Headless          bool `yaml:"headless"`
	ActionTimeoutMs   int  `yaml:"browser_timeout_ms"`
	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
}

// LimitsConfig configures resource caps (§5).
type LimitsConfig struct {
	MaxTextLength int `yaml:"max_text_length"`
	MaxElements   int `yaml:"max_elements"`
	MaxFrameIndices int `yaml:"max_frame_indices"` // LRU size, default 10 (§3, §5)
}

// EmbeddingConfig configures the embedder backend (§6).
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "genai" or "deterministic"
	GenAIAPIKey string `yaml:"genai_api_key"`
	TextModel   string `yaml:"text_model"`
	HTMLModel   string `yaml:"html_model"`
}

// StoreConfig configures the SQLite-backed caches (§4.9, §4.10).
type StoreConfig struct {
	CacheSizeMB  int  `yaml:"cache_size_mb"`
	RequireVec   bool `yaml:"require_vec"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		ModelsDir:         "",
		CacheDir:          filepath.Join(home, ".her", "cache"),
		UseSemanticSearch: true,
		DisableHeuristics: false,
		Browser: BrowserConfig{
			Headless:            true,
			ActionTimeoutMs:     10_000,
			NavigationTimeoutMs: 30_000,
		},
		Limits: LimitsConfig{
			MaxTextLength:   50,
			MaxElements:     5000,
			MaxFrameIndices: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:  "deterministic",
			TextModel: "minilm-local",
			HTMLModel: "markuplm-local",
		},
		Store: StoreConfig{
			CacheSizeMB: 400,
			RequireVec:  false,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

const (
	msDuration           = time.Millisecond
	defaultActionTimeout = 10 * time.Second
	defaultNavTimeout    = 30 * time.Second
)

// ActionTimeout returns the per-action driver timeout as a Duration.
func (c BrowserConfig) ActionTimeout() time.Duration {
	if c.ActionTimeoutMs <= 0 {
		return defaultActionTimeout
	}
	return time.Duration(c.ActionTimeoutMs) * msDuration
}

// NavigationTimeout returns the navigation timeout as a Duration.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return defaultNavTimeout
	}
	return time.Duration(c.NavigationTimeoutMs) * msDuration
}

// Load reads a YAML config file if present, falling back to defaults, then
// applies environment-variable overrides (§6).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides maps §6's recognised environment inputs onto cfg. All
// inputs are optional; an unset or unparsable value leaves the existing
// (file or default) value untouched.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HER_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("HER_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v, ok := lookupBool("HER_USE_SEMANTIC_SEARCH"); ok {
		c.UseSemanticSearch = v
	}
	if v, ok := lookupBool("HER_DISABLE_HEURISTICS"); ok {
		c.DisableHeuristics = v
	}
	if v, ok := lookupBool("HER_HEADLESS"); ok {
		c.Browser.Headless = v
	}
	if v, ok := lookupInt("HER_BROWSER_TIMEOUT_MS"); ok {
		c.Browser.ActionTimeoutMs = v
	}
	if v, ok := lookupInt("HER_MAX_TEXT_LENGTH"); ok {
		c.Limits.MaxTextLength = v
	}
	if v, ok := lookupInt("HER_MAX_ELEMENTS"); ok {
		c.Limits.MaxElements = v
	}
	if v, ok := lookupInt("HER_CACHE_SIZE_MB"); ok {
		c.Store.CacheSizeMB = v
	}
	if v := os.Getenv("HER_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.Embedding.Provider == "" || c.Embedding.Provider == "deterministic" {
			c.Embedding.Provider = "genai"
		}
	}
}

func lookupBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func lookupInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
