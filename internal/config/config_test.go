package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexai/opsinsight/internal/config"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPSINSIGHT_CONFIG", "")
	t.Setenv("OPSINSIGHT_API_KEYS", "k1")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, []string{"k1"}, cfg.APIKeys)
	assert.Equal(t, config.DefaultModelRetries, cfg.ModelRetries)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeFile(t, "opsinsight.toml", `
port = 9090
environment = "production"
enable_auth = false
store_driver = "mysql"
store_dsn = "ops:pw@tcp(db:3306)/hospital"
model_retries = 4
preview_rows = 20
knowledge_indices = ["kb-policies", "kb-guides-*"]
`)
	t.Setenv("OPSINSIGHT_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "mysql", cfg.StoreConfig().Driver)
	assert.Equal(t, "ops:pw@tcp(db:3306)/hospital", cfg.StoreConfig().DSN)
	assert.Equal(t, 4, cfg.ModelOptions().Retries)
	assert.Equal(t, []string{"kb-policies", "kb-guides-*"}, cfg.KnowledgeConfig().Indices)
}

func TestLoad_JSONFileWithEnvOverride(t *testing.T) {
	path := writeFile(t, "opsinsight.json", `{"port": 7000, "enable_auth": false, "model": "from-file"}`)
	t.Setenv("OPSINSIGHT_CONFIG", path)
	t.Setenv("OPSINSIGHT_PORT", "7100")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "from-file", cfg.ModelOptions().Model)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]struct {
		name string
		body string
	}{
		"bad toml":          {name: "c.toml", body: "port = ="},
		"bad json":          {name: "c.json", body: "{"},
		"es without hosts":  {name: "c.json", body: `{"enable_auth": false, "elasticsearch_enabled": true}`},
		"negative retries":  {name: "c.json", body: `{"enable_auth": false, "model_retries": -1}`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("OPSINSIGHT_CONFIG", writeFile(t, tc.name, tc.body))
			t.Setenv("OPSINSIGHT_API_KEYS", "")
			_, err := config.Load()
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("OPSINSIGHT_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestValidateServer(t *testing.T) {
	t.Setenv("OPSINSIGHT_CONFIG", writeFile(t, "c.json", `{"enable_auth": true}`))
	t.Setenv("OPSINSIGHT_API_KEYS", "")

	cfg, err := config.Load()
	require.NoError(t, err, "the CLI runs without API keys")
	assert.Error(t, cfg.ValidateServer())

	cfg.APIKeys = []string{"k1"}
	assert.NoError(t, cfg.ValidateServer())

	cfg.RateLimitPerMinute = 0
	assert.Error(t, cfg.ValidateServer())
}

func TestSettings(t *testing.T) {
	path := writeFile(t, "c.json", `{
		"enable_auth": false,
		"preview_rows": 15,
		"schema_cache_ttl": 60,
		"enable_pii_detection": false,
		"model_timeout": 30,
		"model_retry_delay": 1
	}`)
	t.Setenv("OPSINSIGHT_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 15, s.PreviewRows)
	assert.Equal(t, time.Minute, s.SchemaCacheTTL)
	assert.Empty(t, s.PIIKeywords)
	assert.Contains(t, s.Schema.TableNames(), "drg_records")

	opts := cfg.ModelOptions()
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, time.Second, opts.RetryDelay)
}

func TestSettings_SchemaFile(t *testing.T) {
	schemaPath := writeFile(t, "schema.yaml", `
tables:
  - name: beds
    description: Bed occupancy by ward
    columns:
      - {name: ward, type: TEXT}
      - {name: occupied, type: INTEGER}
`)
	t.Setenv("OPSINSIGHT_CONFIG", writeFile(t, "c.json", `{"enable_auth": false}`))
	t.Setenv("OPSINSIGHT_SCHEMA_FILE", schemaPath)

	cfg, err := config.Load()
	require.NoError(t, err)
	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, []string{"beds"}, s.Schema.TableNames())

	t.Setenv("OPSINSIGHT_SCHEMA_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err = config.Load()
	require.NoError(t, err)
	_, err = cfg.Settings()
	assert.Error(t, err)
}
