// Package config loads the assistant configuration from defaults, an
// optional YAML file, a .env file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/search"
)

// Supported LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Config is the assistant configuration.
type Config struct {
	Memory   MemoryConfig   `yaml:"memory"`
	Embedder EmbedderConfig `yaml:"embedder"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
}

// MemoryConfig configures conversation memory.
type MemoryConfig struct {
	// DataDir holds the memory file and the vector database.
	// Default: "."
	DataDir string `yaml:"data_dir"`

	// MemoryFile is the legacy memory file, also used for user facts.
	// Default: "memory.json"
	MemoryFile string `yaml:"memory_file"`

	// VectorDBPath is the vector database directory.
	// Default: "chroma_db"
	VectorDBPath string `yaml:"vector_db_path"`

	// Compress gzips persisted vector records.
	Compress bool `yaml:"compress,omitempty"`

	// MemoryLimit caps the number of stored conversations.
	// Default: 10
	MemoryLimit int `yaml:"memory_limit"`

	// SaveImmediately enforces MemoryLimit on every recorded turn.
	// Default: true
	SaveImmediately bool `yaml:"save_immediately"`

	// Dimensions is the embedding size.
	// Default: 384
	Dimensions int `yaml:"dimensions"`

	// SimilarityTopK is the number of memories injected per turn.
	// Default: 3
	SimilarityTopK int `yaml:"similarity_top_k"`

	// KeywordThreshold is the minimum keyword score for fallback retrieval.
	// Default: 0.3
	KeywordThreshold float64 `yaml:"keyword_threshold"`

	// HistoryLimit is the number of recent turns sent as history.
	// Default: 5
	HistoryLimit int `yaml:"history_limit"`

	// EmbedCacheSize bounds the embedding cache in entries.
	// Default: 4096
	EmbedCacheSize int64 `yaml:"embed_cache_size"`
}

// EmbedderConfig configures the sentence encoder. Without a model the
// hash embedding is used.
type EmbedderConfig struct {
	ONNXModel         string `yaml:"onnx_model,omitempty"`
	ONNXTokenizer     string `yaml:"onnx_tokenizer,omitempty"`
	SharedLibrary     string `yaml:"shared_library,omitempty"`
	MaxSequenceLength int    `yaml:"max_sequence_length,omitempty"`
}

// LLMConfig configures the reply model.
type LLMConfig struct {
	// Provider is "openrouter" or "anthropic".
	// Default: "openrouter"
	Provider string `yaml:"provider"`

	OpenRouterAPIKey string `yaml:"openrouter_api_key,omitempty"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Models maps aliases to OpenRouter model ids.
	Models map[string]string `yaml:"models"`

	// DefaultModel is the alias used at startup.
	// Default: "gemma"
	DefaultModel string `yaml:"default_model"`

	// Alternates are tried in order when a model is rate limited.
	Alternates []string `yaml:"alternates,omitempty"`

	// AnthropicModels maps aliases to Anthropic model ids.
	AnthropicModels map[string]string `yaml:"anthropic_models"`

	// AnthropicModel is the alias or model id used at startup with the
	// anthropic provider.
	// Default: "sonnet"
	AnthropicModel string `yaml:"anthropic_model"`

	// SiteURL and SiteName identify the app to OpenRouter.
	SiteURL  string `yaml:"site_url"`
	SiteName string `yaml:"site_name"`

	// MaxTokens caps reply length.
	// Default: 1024
	MaxTokens int64 `yaml:"max_tokens"`
}

// SearchConfig configures the "search:" command.
type SearchConfig struct {
	// Enabled turns web search on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// BaseURL overrides the DuckDuckGo endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxResults caps results per query.
	// Default: 5
	MaxResults int `yaml:"max_results"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			DataDir:          ".",
			MemoryFile:       "memory.json",
			VectorDBPath:     "chroma_db",
			MemoryLimit:      10,
			SaveImmediately:  true,
			Dimensions:       384,
			SimilarityTopK:   3,
			KeywordThreshold: memory.DefaultKeywordThreshold,
			HistoryLimit:     5,
			EmbedCacheSize:   4096,
		},
		LLM: LLMConfig{
			Provider: ProviderOpenRouter,
			Models: map[string]string{
				"gemma": "google/gemma-3-12b-it:free",
				"phi":   "microsoft/phi-4-reasoning:free",
			},
			DefaultModel: "gemma",
			AnthropicModels: map[string]string{
				"sonnet": "claude-sonnet-4-20250514",
				"haiku":  "claude-3-5-haiku-latest",
			},
			AnthropicModel: "sonnet",
			SiteURL:        "http://localhost:8000",
			SiteName:       "Memory AI Agent",
			MaxTokens:      1024,
		},
		Search: SearchConfig{
			Enabled:    true,
			MaxResults: search.DefaultMaxResults,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; envFiles
// are loaded with godotenv (default ".env", missing is fine). Variables
// already set in the environment win over .env values.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"OPENROUTER_API_KEY":    &c.LLM.OpenRouterAPIKey,
		"ANTHROPIC_API_KEY":     &c.LLM.AnthropicAPIKey,
		"SITE_URL":              &c.LLM.SiteURL,
		"SITE_NAME":             &c.LLM.SiteName,
		"RECALL_PROVIDER":       &c.LLM.Provider,
		"RECALL_MODEL":          &c.LLM.DefaultModel,
		"RECALL_DATA_DIR":       &c.Memory.DataDir,
		"RECALL_ONNX_MODEL":     &c.Embedder.ONNXModel,
		"RECALL_ONNX_TOKENIZER": &c.Embedder.ONNXTokenizer,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("RECALL_MEMORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECALL_MEMORY_LIMIT: %w", err)
		}
		c.Memory.MemoryLimit = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	m := c.Memory
	switch {
	case m.MemoryLimit <= 0:
		return fmt.Errorf("memory.memory_limit must be positive, got %d", m.MemoryLimit)
	case m.Dimensions <= 0:
		return fmt.Errorf("memory.dimensions must be positive, got %d", m.Dimensions)
	case m.SimilarityTopK <= 0:
		return fmt.Errorf("memory.similarity_top_k must be positive, got %d", m.SimilarityTopK)
	case m.HistoryLimit < 0:
		return fmt.Errorf("memory.history_limit must not be negative, got %d", m.HistoryLimit)
	case m.KeywordThreshold < 0 || m.KeywordThreshold > 1:
		return fmt.Errorf("memory.keyword_threshold must be in [0,1], got %v", m.KeywordThreshold)
	}

	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	return nil
}

// MemoryFilePath returns the memory file location.
func (c *Config) MemoryFilePath() string {
	return c.resolve(c.Memory.MemoryFile)
}

// VectorDBDir returns the vector database location.
func (c *Config) VectorDBDir() string {
	return c.resolve(c.Memory.VectorDBPath)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Memory.DataDir, p)
}

// ManagerConfig converts the memory section for memory.NewManager.
func (c *Config) ManagerConfig() *memory.Config {
	return &memory.Config{
		MemoryFile:       c.MemoryFilePath(),
		MemoryLimit:      c.Memory.MemoryLimit,
		SaveImmediately:  c.Memory.SaveImmediately,
		TopK:             c.Memory.SimilarityTopK,
		KeywordThreshold: c.Memory.KeywordThreshold,
	}
}

// APIKey returns the key of the configured provider.
func (c *Config) APIKey() string {
	if c.LLM.Provider == ProviderAnthropic {
		return c.LLM.AnthropicAPIKey
	}
	return c.LLM.OpenRouterAPIKey
}

// ModelAliases returns the alias table of the configured provider.
func (c *Config) ModelAliases() map[string]string {
	if c.LLM.Provider == ProviderAnthropic {
		return c.LLM.AnthropicModels
	}
	return c.LLM.Models
}

// StartModel returns the alias or model id a session starts with.
func (c *Config) StartModel() string {
	if c.LLM.Provider == ProviderAnthropic {
		return c.LLM.AnthropicModel
	}
	return c.LLM.DefaultModel
}

// HasModel reports whether alias names a model of the configured provider.
func (c *Config) HasModel(alias string) bool {
	_, ok := c.ModelAliases()[alias]
	return ok
}
