// Package config loads application configuration.
//
// Priority, highest first: environment variables (SUPPORT_KB_*),
// ~/.support-kb/config.yaml, built-in defaults. OPENAI_API_KEY is also
// honored so the usual shell setup works unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Validation sentinels, checked with errors.Is.
var (
	ErrInvalidProvider  = errors.New("invalid embedding provider")
	ErrMissingAPIKey    = errors.New("missing OpenAI API key")
	ErrInvalidCacheTTL  = errors.New("invalid cache TTL")
	ErrInvalidLogCap    = errors.New("invalid search log capacity")
	ErrInvalidMaxResult = errors.New("invalid search result limit")
)

// Embedding provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderOff    = "off"
)

// Config is the resolved application configuration.
type Config struct {
	DBPath string `mapstructure:"db_path"`
	User   string `mapstructure:"user"` // audit actor for CLI mutations

	EmbedProvider string `mapstructure:"embed_provider"` // openai, ollama, off

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	ChatModel     string `mapstructure:"chat_model"`
	EmbedModel    string `mapstructure:"embed_model"`
	EmbedDims     int    `mapstructure:"embed_dims"`

	OllamaHost  string `mapstructure:"ollama_host"`
	OllamaModel string `mapstructure:"ollama_model"`

	CacheTTLHours    int `mapstructure:"cache_ttl_hours"`
	SearchLogCap     int `mapstructure:"search_log_cap"`
	SearchMaxResults int `mapstructure:"search_max_results"`

	LogJSON bool `mapstructure:"log_json"`
}

// Load reads configuration from defaults, file, and environment.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".support-kb")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("SUPPORT_KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional variable, without the prefix.
	v.BindEnv("openai_api_key", "SUPPORT_KB_OPENAI_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("db_path", filepath.Join(configDir, "kb.db"))
	v.SetDefault("user", defaultUser())

	v.SetDefault("embed_provider", ProviderOff)
	v.SetDefault("chat_model", "gpt-4o-mini")
	v.SetDefault("embed_model", "text-embedding-3-small")
	v.SetDefault("embed_dims", 1536)

	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("ollama_model", "nomic-embed-text")

	v.SetDefault("cache_ttl_hours", 12)
	v.SetDefault("search_log_cap", 1000)
	v.SetDefault("search_max_results", 10)
}

// Validate fails fast on configuration that would only break later.
func (c *Config) Validate() error {
	switch c.EmbedProvider {
	case ProviderOpenAI, ProviderOllama, ProviderOff:
	default:
		return fmt.Errorf("%w: %q (want openai, ollama, or off)", ErrInvalidProvider, c.EmbedProvider)
	}
	if c.EmbedProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: embed_provider is openai", ErrMissingAPIKey)
	}
	if c.CacheTTLHours <= 0 {
		return fmt.Errorf("%w: %d hours", ErrInvalidCacheTTL, c.CacheTTLHours)
	}
	if c.SearchLogCap <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLogCap, c.SearchLogCap)
	}
	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxResult, c.SearchMaxResults)
	}
	return nil
}

// ReasoningEnabled reports whether LLM-backed features can run.
func (c *Config) ReasoningEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
