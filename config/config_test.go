package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aeo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, 5<<20, cfg.Analyzer.MaxContentBytes)
	assert.Equal(t, 1500, cfg.Analyzer.DigestTokenBudget)
	assert.Equal(t, "claude", cfg.LLM.DefaultProvider)
	assert.NoError(t, cfg.Validate())

	timeout, err := cfg.QualitativeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	interval, err := cfg.StatsFlushInterval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, interval)
}

func TestLoadFromFiles_MergesInOrder(t *testing.T) {
	first := writeConfig(t, `
[server]
port = 9000
rate_limit = 5.0

[analyzer]
qualitative_timeout = "10s"
`)
	second := writeConfig(t, `
[server]
port = 9100

[llm]
default_provider = "gemini"
`)

	cfg, err := LoadFromFiles(first, "", second)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, "gemini", cfg.LLM.DefaultProvider)

	timeout, err := cfg.QualitativeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)

	// Untouched sections keep their defaults
	assert.Equal(t, "claude-haiku-4-5", cfg.Claude.Model)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[logging]
level = "warn"
`)
	t.Setenv("AEO_SERVER_PORT", "9300")
	t.Setenv("AEO_LOG_LEVEL", "debug")
	t.Setenv("AEO_QUALITATIVE_ENABLED", "false")
	t.Setenv("AEO_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AEO_STATS_FLUSH_INTERVAL", "30s")

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Analyzer.QualitativeEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	interval, err := cfg.StatsFlushInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid toml", "[server\nport = 1"},
		{"bad port", "[server]\nport = 70000"},
		{"bad timeout", "[analyzer]\nqualitative_timeout = \"soon\""},
		{"negative timeout", "[analyzer]\nqualitative_timeout = \"-5s\""},
		{"unknown provider", "[llm]\ndefault_provider = \"openai\""},
		{"zero max bytes", "[analyzer]\nmax_content_bytes = 0"},
		{"bad flush interval", "[stats]\nflush_interval = \"hourly\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFiles(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("AEO_CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := ResolveAPIKey("anthropic_api_key", "")
	assert.Error(t, err)

	key, err := ResolveAPIKey("anthropic_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	key, err = ResolveAPIKey("anthropic_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, RequestTimeout("", 5*time.Second))
	assert.Equal(t, 2*time.Minute, RequestTimeout("2m", 5*time.Second))
	assert.Equal(t, 5*time.Second, RequestTimeout("never", 5*time.Second))
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 8082, cfg.Server.Port)

	ApplyFlagOverrides(cfg, 8181, "127.0.0.1")
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}
