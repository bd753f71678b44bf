package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-insights.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"`

	// Database is the system's own store: curated schema, sessions and
	// outcomes. It doubles as the default execution target.
	Database DatabaseConfig `yaml:"database"`

	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Query     QueryConfig     `yaml:"query"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Chart     ChartConfig     `yaml:"chart"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_insights"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the cancellation-marker and embedding-cache store.
// When disabled, both fall back to in-process implementations.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// KeyPrefix namespaces every key this process writes.
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"insights:"`
}

// LLMConfig selects the completion backend used for SQL generation and summaries.
type LLMConfig struct {
	Provider           string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL            string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:"http://localhost:11434/v1"`
	Model              string        `yaml:"model" env:"LLM_MODEL" env-default:"llama3.1"`
	APIKey             string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	SQLTemperature     float64       `yaml:"sql_temperature" env:"LLM_SQL_TEMPERATURE" env-default:"0"`
	SummaryTemperature float64       `yaml:"summary_temperature" env:"LLM_SUMMARY_TEMPERATURE" env-default:"0.7"`
	MaxTokens          int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	Timeout            time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint (Ollama by default).
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:"http://localhost:11434/v1"`
	Model      string        `yaml:"model" env:"EMBEDDING_MODEL" env-default:"nomic-embed-text"`
	APIKey     string        `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	Dimensions int           `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"768"`
	Timeout    time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT" env-default:"30s"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"EMBEDDING_CACHE_TTL" env-default:"24h"`
}

// RetrievalConfig bounds schema selection.
type RetrievalConfig struct {
	TopColumns     int `yaml:"top_columns" env:"RETRIEVAL_TOP_COLUMNS" env-default:"12"`
	TopTables      int `yaml:"top_tables" env:"RETRIEVAL_TOP_TABLES" env-default:"3"`
	MaxTables      int `yaml:"max_tables" env:"RETRIEVAL_MAX_TABLES" env-default:"3"`
	FallbackTables int `yaml:"fallback_tables" env:"RETRIEVAL_FALLBACK_TABLES" env-default:"3"`
	MinTokenLength int `yaml:"min_token_length" env:"RETRIEVAL_MIN_TOKEN_LENGTH" env-default:"4"`
}

// QueryConfig bounds execution against the target database.
type QueryConfig struct {
	RowLimit         int           `yaml:"row_limit" env:"QUERY_ROW_LIMIT" env-default:"1000"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"QUERY_STATEMENT_TIMEOUT" env-default:"30s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" env:"QUERY_CONNECT_TIMEOUT" env-default:"10s"`
	// FallbackToDefaultStore executes against Database when no data source is active.
	FallbackToDefaultStore bool `yaml:"fallback_to_default_store" env:"QUERY_FALLBACK_TO_DEFAULT_STORE" env-default:"false"`
}

// PipelineConfig controls retries and the history window of the ask pipeline.
type PipelineConfig struct {
	MaxRetries     int           `yaml:"max_retries" env:"PIPELINE_MAX_RETRIES" env-default:"3"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"PIPELINE_INITIAL_BACKOFF" env-default:"1s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"PIPELINE_MAX_BACKOFF" env-default:"10m"`
	HistoryWindow  int           `yaml:"history_window" env:"PIPELINE_HISTORY_WINDOW" env-default:"6"`
	TaskTimeout    time.Duration `yaml:"task_timeout" env:"PIPELINE_TASK_TIMEOUT" env-default:"5m"`
	Workers        int           `yaml:"workers" env:"PIPELINE_WORKERS" env-default:"4"`
}

// ChartConfig controls result post-processing.
type ChartConfig struct {
	DisplayCap        int `yaml:"display_cap" env:"CHART_DISPLAY_CAP" env-default:"20"`
	SummarySampleRows int `yaml:"summary_sample_rows" env:"CHART_SUMMARY_SAMPLE_ROWS" env-default:"15"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"false"`
	Addr    string `yaml:"addr" env:"METRICS_ADDR" env-default:"127.0.0.1:9464"`
}

const configFile = "config.yaml"

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: every field has an env var and a default.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(configFile); err == nil {
		if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLM.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Query.RowLimit < 1 || c.Query.RowLimit > 100000 {
		return fmt.Errorf("query.row_limit must be between 1 and 100000, got %d", c.Query.RowLimit)
	}
	if c.Pipeline.HistoryWindow <= 0 {
		return fmt.Errorf("pipeline.history_window must be positive, got %d", c.Pipeline.HistoryWindow)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	if c.Retrieval.MaxTables <= 0 {
		return fmt.Errorf("retrieval.max_tables must be positive, got %d", c.Retrieval.MaxTables)
	}
	if c.Chart.DisplayCap <= 0 {
		return fmt.Errorf("chart.display_cap must be positive, got %d", c.Chart.DisplayCap)
	}
	return nil
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// URL returns the store as a postgres:// URL, the form golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
