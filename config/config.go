package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the service configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Logging     LoggingConfig  `toml:"logging"`
	Analyzer    AnalyzerConfig `toml:"analyzer"`
	LLM         LLMConfig      `toml:"llm"`
	Claude      ClaudeConfig   `toml:"claude"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Stats       StatsConfig    `toml:"stats"`
}

type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	GinMode     string   `toml:"gin_mode"`     // debug, release or test
	RateLimit   float64  `toml:"rate_limit"`   // requests per second per client
	RateBurst   int      `toml:"rate_burst"`   // bucket size per client
	CORSOrigins []string `toml:"cors_origins"` // "*" allows any origin
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // debug, info, warn, error
	Output []string `toml:"output"` // "stdout", "file"
	File   string   `toml:"file"`
}

type AnalyzerConfig struct {
	MaxContentBytes    int    `toml:"max_content_bytes"`
	QualitativeEnabled bool   `toml:"qualitative_enabled"`
	QualitativeTimeout string `toml:"qualitative_timeout"` // duration string, e.g. "30s"
	DigestTokenBudget  int    `toml:"digest_token_budget"`
	ScoringFile        string `toml:"scoring_file"` // replaces the embedded profiles when set
}

type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // "claude" or "gemini"
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

type StatsConfig struct {
	DataDir       string `toml:"data_dir"`
	FlushInterval string `toml:"flush_interval"` // duration string, e.g. "5m"
}

// NewDefaultConfig returns the configuration used when no file is supplied
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:        "",
			Port:        8082,
			GinMode:     "debug",
			RateLimit:   2,
			RateBurst:   10,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
			File:   "logs/aeo-optimizer.log",
		},
		Analyzer: AnalyzerConfig{
			MaxContentBytes:    5 << 20,
			QualitativeEnabled: true,
			QualitativeTimeout: "30s",
			DigestTokenBudget:  1500,
		},
		LLM: LLMConfig{
			DefaultProvider: "claude",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   2048,
			Timeout:     "30s",
			Temperature: 0.2,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   2048,
			Timeout:     "30s",
			Temperature: 0.2,
		},
		Stats: StatsConfig{
			DataDir:       "data",
			FlushInterval: "5m",
		},
	}
}

// LoadFromFiles starts from defaults, merges each TOML file in order and then
// applies environment overrides. Empty paths are skipped.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AEO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("AEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.GinMode = mode
	}
	if rate := os.Getenv("AEO_RATE_LIMIT"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Server.RateLimit = r
		}
	}
	if burst := os.Getenv("AEO_RATE_BURST"); burst != "" {
		if b, err := strconv.Atoi(burst); err == nil {
			config.Server.RateBurst = b
		}
	}
	if origins := os.Getenv("AEO_CORS_ORIGINS"); origins != "" {
		config.Server.CORSOrigins = splitList(origins)
	}

	// Logging configuration
	if level := os.Getenv("AEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AEO_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	// Analyzer configuration
	if maxBytes := os.Getenv("AEO_MAX_CONTENT_BYTES"); maxBytes != "" {
		if n, err := strconv.Atoi(maxBytes); err == nil {
			config.Analyzer.MaxContentBytes = n
		}
	}
	if enabled := os.Getenv("AEO_QUALITATIVE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Analyzer.QualitativeEnabled = b
		}
	}
	if timeout := os.Getenv("AEO_QUALITATIVE_TIMEOUT"); timeout != "" {
		config.Analyzer.QualitativeTimeout = timeout
	}
	if scoring := os.Getenv("AEO_SCORING_FILE"); scoring != "" {
		config.Analyzer.ScoringFile = scoring
	}

	// LLM configuration
	if provider := os.Getenv("AEO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = provider
	}
	if model := os.Getenv("AEO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if model := os.Getenv("AEO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Stats configuration
	if dir := os.Getenv("AEO_DATA_DIR"); dir != "" {
		config.Stats.DataDir = dir
	}
	if interval := os.Getenv("AEO_STATS_FLUSH_INTERVAL"); interval != "" {
		config.Stats.FlushInterval = interval
	}
}

// Validate rejects values the service cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Analyzer.MaxContentBytes <= 0 {
		return fmt.Errorf("analyzer.max_content_bytes must be positive")
	}
	if _, err := c.QualitativeTimeout(); err != nil {
		return fmt.Errorf("analyzer.qualitative_timeout: %w", err)
	}
	if _, err := c.StatsFlushInterval(); err != nil {
		return fmt.Errorf("stats.flush_interval: %w", err)
	}
	switch c.LLM.DefaultProvider {
	case "claude", "gemini":
	default:
		return fmt.Errorf("llm.default_provider must be 'claude' or 'gemini', got %q", c.LLM.DefaultProvider)
	}
	return nil
}

// QualitativeTimeout parses the qualitative stage timeout
func (c *Config) QualitativeTimeout() (time.Duration, error) {
	return parseDuration(c.Analyzer.QualitativeTimeout, 30*time.Second)
}

// StatsFlushInterval parses how often monthly statistics are written to disk
func (c *Config) StatsFlushInterval() (time.Duration, error) {
	return parseDuration(c.Stats.FlushInterval, 5*time.Minute)
}

// RequestTimeout parses a provider timeout, falling back to def when unset
func RequestTimeout(value string, def time.Duration) time.Duration {
	d, err := parseDuration(value, def)
	if err != nil {
		return def
	}
	return d
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ApplyFlagOverrides applies command-line flags, which win over everything else
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves a provider key. Environment variables win over the
// config value.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"AEO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":    {"AEO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	for _, envVarName := range keyToEnvMapping[name] {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
