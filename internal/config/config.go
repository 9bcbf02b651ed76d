package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/schema"
	"github.com/cortexai/opsinsight/internal/service"
)

type Config struct {
	// Server
	Host        string `json:"host" toml:"host"`
	Port        int    `json:"port" toml:"port"`
	Environment string `json:"environment" toml:"environment"`
	APIPrefix   string `json:"api_prefix" toml:"api_prefix"`
	LogLevel    string `json:"log_level" toml:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins" toml:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header" toml:"api_key_header"`
	APIKeys      []string `json:"api_keys" toml:"api_keys"`
	EnableAuth   bool     `json:"enable_auth" toml:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute" toml:"rate_limit_per_minute"`

	// Store
	StoreDriver string `json:"store_driver" toml:"store_driver"` // sqlite, mysql, pgx, postgres, bigquery
	StoreDSN    string `json:"store_dsn" toml:"store_dsn"`
	MaxRows     int    `json:"max_rows" toml:"max_rows"`
	SchemaFile  string `json:"schema_file" toml:"schema_file"` // empty = embedded hospital schema

	// BigQuery
	GCPProjectID                 string `json:"gcp_project_id" toml:"gcp_project_id"`
	GoogleApplicationCredentials string `json:"google_application_credentials" toml:"google_application_credentials"`
	BigQueryLocation             string `json:"bigquery_location" toml:"bigquery_location"`
	MaxQueryBytesProcessed       int64  `json:"max_query_bytes_processed" toml:"max_query_bytes_processed"`

	// Security
	EnableDataMasking  bool     `json:"enable_data_masking" toml:"enable_data_masking"`
	EnablePIIDetection bool     `json:"enable_pii_detection" toml:"enable_pii_detection"`
	SensitiveColumns   []string `json:"sensitive_columns" toml:"sensitive_columns"`
	PIIKeywords        []string `json:"pii_keywords" toml:"pii_keywords"`
	EnableAuditLogging bool     `json:"enable_audit_logging" toml:"enable_audit_logging"`
	MaxPromptLength    int      `json:"max_prompt_length" toml:"max_prompt_length"`

	// Elasticsearch knowledge base
	ElasticsearchEnabled     bool     `json:"elasticsearch_enabled" toml:"elasticsearch_enabled"`
	ElasticsearchAddresses   []string `json:"elasticsearch_addresses" toml:"elasticsearch_addresses"`
	ElasticsearchUser        string   `json:"elasticsearch_user" toml:"elasticsearch_user"`
	ElasticsearchPassword    string   `json:"elasticsearch_password" toml:"elasticsearch_password"`
	ElasticsearchVerifyCerts bool     `json:"elasticsearch_verify_certs" toml:"elasticsearch_verify_certs"`
	ElasticsearchMaxRetries  int      `json:"elasticsearch_max_retries" toml:"elasticsearch_max_retries"`
	KnowledgeIndices         []string `json:"knowledge_indices" toml:"knowledge_indices"`
	KnowledgeMinScore        float64  `json:"knowledge_min_score" toml:"knowledge_min_score"`
	KnowledgeResults         int      `json:"knowledge_results" toml:"knowledge_results"`

	// AI / LLM
	AnthropicAPIKey  string `json:"anthropic_api_key" toml:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url" toml:"anthropic_base_url"` // override for a compatible proxy
	Model            string `json:"model" toml:"model"`
	ModelMaxTokens   int    `json:"model_max_tokens" toml:"model_max_tokens"`
	ModelTimeout     int    `json:"model_timeout" toml:"model_timeout"`         // seconds per attempt
	ModelRetries     int    `json:"model_retries" toml:"model_retries"`         // extra attempts
	ModelRetryDelay  int    `json:"model_retry_delay" toml:"model_retry_delay"` // seconds

	// Pipeline
	UploadDir       string `json:"upload_dir" toml:"upload_dir"`
	PreviewRows     int    `json:"preview_rows" toml:"preview_rows"`
	PreviewChars    int    `json:"preview_chars" toml:"preview_chars"`
	ResultRowCap    int    `json:"result_row_cap" toml:"result_row_cap"`
	ChartMarker     string `json:"chart_marker" toml:"chart_marker"`
	SummaryHeading  string `json:"summary_heading" toml:"summary_heading"`
	SchemaRowCounts bool   `json:"schema_row_counts" toml:"schema_row_counts"`
	SchemaCacheTTL  int    `json:"schema_cache_ttl" toml:"schema_cache_ttl"` // seconds
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		Environment:              DefaultEnvironment,
		APIPrefix:                DefaultAPIPrefix,
		LogLevel:                 DefaultLogLevel,
		CORSOrigins:              DefaultCORSOrigins,
		APIKeyHeader:             "X-API-Key",
		EnableAuth:               true,
		RateLimitPerMinute:       DefaultRateLimitPerMinute,
		StoreDriver:              DefaultStoreDriver,
		StoreDSN:                 DefaultStoreDSN,
		MaxRows:                  DefaultMaxRows,
		BigQueryLocation:         DefaultBigQueryLocation,
		MaxQueryBytesProcessed:   DefaultMaxQueryBytesProcessed,
		EnableDataMasking:        true,
		EnablePIIDetection:       true,
		SensitiveColumns:         DefaultSensitiveColumns,
		PIIKeywords:              DefaultPIIKeywords,
		EnableAuditLogging:       true,
		MaxPromptLength:          DefaultMaxPromptLength,
		ElasticsearchVerifyCerts: true,
		ElasticsearchMaxRetries:  DefaultElasticsearchMaxRetries,
		KnowledgeIndices:         DefaultKnowledgeIndices,
		KnowledgeResults:         DefaultKnowledgeResults,
		Model:                    DefaultModel,
		ModelMaxTokens:           DefaultModelMaxTokens,
		ModelTimeout:             DefaultModelTimeout,
		ModelRetries:             DefaultModelRetries,
		ModelRetryDelay:          DefaultModelRetryWait,
		PreviewRows:              DefaultPreviewRows,
		PreviewChars:             DefaultPreviewChars,
		ResultRowCap:             DefaultResultRowCap,
		ChartMarker:              DefaultChartMarker,
		SummaryHeading:           DefaultSummaryHeading,
		SchemaCacheTTL:           DefaultSchemaCacheTTL,
	}

	// Load from a config file if specified
	if path := getEnv("OPSINSIGHT_CONFIG", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes TOML for .toml files and JSON otherwise.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("OPSINSIGHT_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("OPSINSIGHT_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("OPSINSIGHT_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("OPSINSIGHT_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("OPSINSIGHT_API_KEYS", ""); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if v := getEnv("OPSINSIGHT_STORE_DRIVER", ""); v != "" {
		cfg.StoreDriver = v
	}
	if v := getEnv("OPSINSIGHT_STORE_DSN", ""); v != "" {
		cfg.StoreDSN = v
	}
	if v := getEnv("OPSINSIGHT_SCHEMA_FILE", ""); v != "" {
		cfg.SchemaFile = v
	}
	if v := getEnv("OPSINSIGHT_UPLOAD_DIR", ""); v != "" {
		cfg.UploadDir = v
	}
	if v := getEnv("OPSINSIGHT_MODEL", ""); v != "" {
		cfg.Model = v
	}
	if v := getEnv("OPSINSIGHT_MODEL_RETRIES", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ModelRetries = n
		}
	}
	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ELASTICSEARCH_ENABLED", ""); v != "" {
		cfg.ElasticsearchEnabled = v == "true" || v == "1"
	}
	if v := getEnv("ELASTICSEARCH_ADDRESSES", ""); v != "" {
		cfg.ElasticsearchAddresses = splitList(v)
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("MAX_QUERY_BYTES_PROCESSED", ""); v != "" {
		if b, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxQueryBytesProcessed = b
		}
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelRetries < 0 {
		return fmt.Errorf("model_retries must not be negative")
	}
	if c.ElasticsearchEnabled && len(c.ElasticsearchAddresses) == 0 {
		return fmt.Errorf("elasticsearch_enabled is set but no elasticsearch_addresses are configured")
	}
	return nil
}

// ValidateServer adds the checks that only matter when serving HTTP.
func (c *Config) ValidateServer() error {
	if c.EnableAuth && len(c.APIKeys) == 0 {
		return fmt.Errorf("enable_auth is set but no api_keys are configured")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Settings builds the immutable pipeline settings.
func (c *Config) Settings() (agent.Settings, error) {
	desc := schema.Default()
	if c.SchemaFile != "" {
		d, err := schema.Load(c.SchemaFile)
		if err != nil {
			return agent.Settings{}, fmt.Errorf("load schema: %w", err)
		}
		desc = d
	}

	s := agent.DefaultSettings()
	s.Schema = desc
	s.PreviewRows = c.PreviewRows
	s.PreviewChars = c.PreviewChars
	s.ResultRowCap = c.ResultRowCap
	s.ChartMarker = c.ChartMarker
	s.SummaryHeading = c.SummaryHeading
	s.KnowledgeResults = c.KnowledgeResults
	s.SchemaRowCounts = c.SchemaRowCounts
	s.SchemaCacheTTL = time.Duration(c.SchemaCacheTTL) * time.Second
	s.MaxQuestionLength = c.MaxPromptLength
	s.SensitiveColumns = c.SensitiveColumns
	s.EnableMasking = c.EnableDataMasking
	s.AuditEnabled = c.EnableAuditLogging
	s.PIIKeywords = nil
	if c.EnablePIIDetection {
		s.PIIKeywords = c.PIIKeywords
	}
	return s, nil
}

func (c *Config) ModelOptions() agent.ModelOptions {
	return agent.ModelOptions{
		APIKey:     c.AnthropicAPIKey,
		BaseURL:    c.AnthropicBaseURL,
		Model:      c.Model,
		MaxTokens:  c.ModelMaxTokens,
		Timeout:    time.Duration(c.ModelTimeout) * time.Second,
		Retries:    c.ModelRetries,
		RetryDelay: time.Duration(c.ModelRetryDelay) * time.Second,
	}
}

func (c *Config) StoreConfig() service.StoreConfig {
	return service.StoreConfig{
		Driver:          c.StoreDriver,
		DSN:             c.StoreDSN,
		MaxRows:         c.MaxRows,
		ProjectID:       c.GCPProjectID,
		CredentialsFile: c.GoogleApplicationCredentials,
		Location:        c.BigQueryLocation,
		MaxBytes:        c.MaxQueryBytesProcessed,
	}
}

func (c *Config) KnowledgeConfig() service.KnowledgeConfig {
	return service.KnowledgeConfig{
		Addresses:   c.ElasticsearchAddresses,
		Username:    c.ElasticsearchUser,
		Password:    c.ElasticsearchPassword,
		VerifyCerts: c.ElasticsearchVerifyCerts,
		MaxRetries:  c.ElasticsearchMaxRetries,
		Indices:     c.KnowledgeIndices,
		MinScore:    c.KnowledgeMinScore,
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
