// Package config loads application configuration with multi-source priority.
//
// Sources, highest priority first:
//  1. Environment variables (RAGCACHE_*, plus a few conventional names)
//  2. Config file (~/.ragcache/config.yaml or ./config.yaml)
//  3. Defaults
//
// The loaded Config struct is constructed once at startup and handed to the
// components that need it. Nothing reads configuration ambiently after Load
// returns.
//
// Security: secret fields are masked in MarshalJSON and String. When adding a
// sensitive field, extend MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the OpenAI-compatible API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates an unknown vector store provider.
	ErrInvalidProvider = errors.New("invalid store provider")

	// ErrInvalidStoreURL indicates a malformed vector store endpoint.
	ErrInvalidStoreURL = errors.New("invalid store URL")

	// ErrMissingPostgresURL indicates the postgres provider is selected
	// without a connection string.
	ErrMissingPostgresURL = errors.New("missing postgres URL")

	// ErrInvalidDimensions indicates the embedding dimensionality is out of range.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidModel indicates an empty model identifier.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidCollection indicates a collection name that cannot be used.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidCacheDistance indicates a negative cache distance threshold.
	ErrInvalidCacheDistance = errors.New("invalid cache max distance")

	// ErrInvalidRateLimit indicates a negative ingestion rate limit.
	ErrInvalidRateLimit = errors.New("invalid ingest rate limit")
)

// Vector store provider identifiers used in Config.StoreProvider.
const (
	ProviderQdrant   = "qdrant"
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
)

// MaxDimensions caps the declared embedding dimensionality. pgvector indexes
// reject wider vectors, and nothing legitimate comes close.
const MaxDimensions = 16000

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// HTTP server
	ServerAddr  string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Vector store selection
	StoreProvider string `mapstructure:"store_provider" json:"store_provider"` // "qdrant" (default), "postgres", "memory"
	QdrantURL     string `mapstructure:"qdrant_url" json:"qdrant_url"`
	QdrantAPIKey  string `mapstructure:"qdrant_api_key" json:"qdrant_api_key"` // SENSITIVE: masked in MarshalJSON
	PostgresURL   string `mapstructure:"postgres_url" json:"postgres_url"`     // SENSITIVE: may embed a password

	// OpenAI-compatible model endpoints
	OpenAIAPIBase  string `mapstructure:"openai_api_base" json:"openai_api_base"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	ChatModel      string `mapstructure:"chat_model" json:"chat_model"`

	// Collections. CacheCollection defaults to "<knowledge>_cached" when empty;
	// use CacheCollectionName to read it.
	Dimensions          int    `mapstructure:"dimensions" json:"dimensions"`
	KnowledgeCollection string `mapstructure:"knowledge_collection" json:"knowledge_collection"`
	CacheCollection     string `mapstructure:"cache_collection" json:"cache_collection"`

	// CacheMaxDistance, when positive, turns distant top-1 cache results into
	// misses. Zero preserves the unconditional-hit behavior.
	CacheMaxDistance float64 `mapstructure:"cache_max_distance" json:"cache_max_distance"`

	// IngestRateLimit throttles embedding batches per second during ingestion.
	// Zero means unlimited.
	IngestRateLimit float64 `mapstructure:"ingest_rate_limit" json:"ingest_rate_limit"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	configDir, err := dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("no config file found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// dir returns the config directory, creating it if needed.
// RAGCACHE_CONFIG_DIR overrides the default ~/.ragcache.
func dir() (string, error) {
	if d := os.Getenv("RAGCACHE_CONFIG_DIR"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	d := filepath.Join(home, ".ragcache")
	if err := os.MkdirAll(d, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return d, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("cors_origins", []string{})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("store_provider", ProviderQdrant)
	viper.SetDefault("qdrant_url", "http://localhost:6333")

	viper.SetDefault("openai_api_base", "https://api.openai.com/v1")
	viper.SetDefault("embedding_model", "text-embedding-ada-002")
	viper.SetDefault("chat_model", "gpt-4o")

	viper.SetDefault("dimensions", 1536)
	viper.SetDefault("knowledge_collection", "knowledge")
	viper.SetDefault("cache_max_distance", 0.0)
	viper.SetDefault("ingest_rate_limit", 0.0)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "ragcache")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// accepted from the environment, never written to the config file by us.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key string, envVars ...string) {
		if err := viper.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: binding %q: %v", key, err))
		}
	}

	mustBind("openai_api_key", "RAGCACHE_OPENAI_API_KEY", "OPENAI_API_KEY")
	mustBind("openai_api_base", "RAGCACHE_OPENAI_API_BASE")
	mustBind("qdrant_api_key", "RAGCACHE_QDRANT_API_KEY", "QDRANT_API_KEY")
	mustBind("qdrant_url", "RAGCACHE_QDRANT_URL")
	mustBind("postgres_url", "RAGCACHE_POSTGRES_URL", "DATABASE_URL")
	mustBind("store_provider", "RAGCACHE_STORE_PROVIDER")
	mustBind("server_addr", "RAGCACHE_ADDR")
	mustBind("cors_origins", "RAGCACHE_CORS_ORIGINS")
	mustBind("trust_proxy", "RAGCACHE_TRUST_PROXY")
	mustBind("rate_burst", "RAGCACHE_RATE_BURST")
	mustBind("tracing.enabled", "RAGCACHE_TRACING_ENABLED")
	mustBind("tracing.endpoint", "RAGCACHE_TRACING_ENDPOINT")
}

// Validate validates configuration values.
// Returns sentinel errors checkable with errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set RAGCACHE_OPENAI_API_KEY (or OPENAI_API_KEY)", ErrMissingAPIKey)
	}

	switch c.StoreProvider {
	case ProviderQdrant:
		if !strings.HasPrefix(c.QdrantURL, "http://") && !strings.HasPrefix(c.QdrantURL, "https://") {
			return fmt.Errorf("%w: qdrant_url must be an http(s) URL, got %q", ErrInvalidStoreURL, c.QdrantURL)
		}
	case ProviderPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("%w: set RAGCACHE_POSTGRES_URL (or DATABASE_URL)", ErrMissingPostgresURL)
		}
	case ProviderMemory:
		// No endpoint to validate. Data does not survive the process.
	default:
		return fmt.Errorf("%w: %q (want %q, %q or %q)",
			ErrInvalidProvider, c.StoreProvider, ProviderQdrant, ProviderPostgres, ProviderMemory)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidModel)
	}
	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model cannot be empty", ErrInvalidModel)
	}

	if c.Dimensions < 1 || c.Dimensions > MaxDimensions {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidDimensions, MaxDimensions, c.Dimensions)
	}

	if err := validateCollectionName(c.KnowledgeCollection); err != nil {
		return fmt.Errorf("knowledge_collection: %w", err)
	}
	if c.CacheCollection != "" {
		if err := validateCollectionName(c.CacheCollection); err != nil {
			return fmt.Errorf("cache_collection: %w", err)
		}
	}
	if c.CacheCollectionName() == c.KnowledgeCollection {
		return fmt.Errorf("%w: cache collection must differ from knowledge collection", ErrInvalidCollection)
	}

	if c.CacheMaxDistance < 0 {
		return fmt.Errorf("%w: must be >= 0, got %g", ErrInvalidCacheDistance, c.CacheMaxDistance)
	}
	if c.IngestRateLimit < 0 {
		return fmt.Errorf("%w: must be >= 0, got %g", ErrInvalidRateLimit, c.IngestRateLimit)
	}

	return nil
}

// validateCollectionName restricts names to characters that are safe both in
// REST paths and, prefixed, as SQL identifiers.
func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCollection)
	}
	if len(name) > 48 {
		return fmt.Errorf("%w: name too long (%d chars, max 48)", ErrInvalidCollection, len(name))
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidCollection, name, r)
		}
	}
	return nil
}

// CacheCollectionName returns the configured cache collection, or the derived
// "<knowledge>_cached" when none is set.
func (c *Config) CacheCollectionName() string {
	if c.CacheCollection != "" {
		return c.CacheCollection
	}
	return c.KnowledgeCollection + "_cached"
}

// maskedValue replaces secret content. Full-width blocks cannot collide with
// substrings of a real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully masked;
// longer ones keep the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of sensitive
// fields: OpenAIAPIKey, QdrantAPIKey, PostgresURL.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.QdrantAPIKey = maskSecret(a.QdrantAPIKey)
	a.PostgresURL = maskSecret(a.PostgresURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so accidental printing never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
