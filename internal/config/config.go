// Package config loads the triage tool's configuration from a JSON file and
// exposes it through typed section accessors.
//
// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration. Secrets (API keys,
// tokens) may live in the file or in environment variables; the environment
// wins so config files can be committed without credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

// Environment variables consulted as overrides.
const (
	EnvGitHubToken     = "AUTOTRIAGE_GITHUB_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// Config is an immutable snapshot of the tool's settings.
type Config struct {
	raw    string
	lookup func(string) string
}

// Default returns a configuration with every value at its default.
func Default() *Config {
	return &Config{lookup: os.Getenv}
}

// Load reads and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates a JSON configuration document.
func Parse(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("config is not valid JSON")
	}
	return &Config{raw: string(data), lookup: os.Getenv}, nil
}

// ServerConfig describes the language server to spawn and its timeouts.
type ServerConfig struct {
	// Command is the server executable. Args are passed verbatim.
	Command string
	Args    []string

	// LanguageID overrides extension-based language detection when set.
	LanguageID string

	// OneBasedPositions marks servers that count lines and characters from 1.
	OneBasedPositions bool

	StartupTimeout  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Server returns the language server section.
func (c *Config) Server() ServerConfig {
	return ServerConfig{
		Command:           c.str("server.command", "typescript-language-server"),
		Args:              c.strs("server.args", []string{"--stdio"}),
		LanguageID:        c.str("server.languageId", ""),
		OneBasedPositions: c.get("server.oneBasedPositions").Bool(),
		StartupTimeout:    c.dur("server.startupTimeoutMs", 10*time.Second),
		RequestTimeout:    c.dur("server.requestTimeoutMs", 5*time.Second),
		ShutdownTimeout:   c.dur("server.shutdownTimeoutMs", 2*time.Second),
	}
}

// AIConfig selects and parameterizes the assessment provider.
type AIConfig struct {
	// Provider is one of "anthropic", "openai", or "gemini".
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
}

// AI returns the assessment provider section. The API key falls back to the
// provider's conventional environment variable.
func (c *Config) AI() AIConfig {
	ai := AIConfig{
		Provider:  c.str("ai.provider", "anthropic"),
		Model:     c.str("ai.model", ""),
		APIKey:    c.str("ai.apiKey", ""),
		MaxTokens: int(c.num("ai.maxTokens", 2048)),
	}
	if ai.APIKey == "" {
		switch ai.Provider {
		case "anthropic":
			ai.APIKey = c.lookup(EnvAnthropicAPIKey)
		case "openai":
			ai.APIKey = c.lookup(EnvOpenAIAPIKey)
		case "gemini":
			ai.APIKey = c.lookup(EnvGeminiAPIKey)
		}
	}
	return ai
}

// GitHubConfig describes issue fetching and the on-disk issue cache.
type GitHubConfig struct {
	Token      string
	APIBaseURL string
	CacheDir   string
	CacheTTL   time.Duration
}

// GitHub returns the issue fetching section. The token falls back to
// AUTOTRIAGE_GITHUB_TOKEN.
func (c *Config) GitHub() GitHubConfig {
	gh := GitHubConfig{
		Token:      c.str("github.token", ""),
		APIBaseURL: c.str("github.apiBaseUrl", "https://api.github.com"),
		CacheDir:   c.str("github.cacheDir", defaultCacheDir()),
		CacheTTL:   c.dur("github.cacheTtlMs", 24*time.Hour),
	}
	if gh.Token == "" {
		gh.Token = c.lookup(EnvGitHubToken)
	}
	return gh
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	// OutputDir receives the generated markdown reports.
	OutputDir string

	// Color is "auto", "always", or "never". Auto enables color only when
	// stdout is a terminal.
	Color string
}

// Report returns the report rendering section.
func (c *Config) Report() ReportConfig {
	return ReportConfig{
		OutputDir: c.str("report.outputDir", "reports"),
		Color:     c.str("report.color", "auto"),
	}
}

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string {
	return c.str("logLevel", "info")
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".autotriage-cache"
	}
	return base + "/autotriage/issues"
}

func (c *Config) get(path string) gjson.Result {
	return gjson.Get(c.raw, path)
}

func (c *Config) str(path, def string) string {
	if v := c.get(path); v.Exists() {
		return v.String()
	}
	return def
}

func (c *Config) strs(path string, def []string) []string {
	v := c.get(path)
	if !v.Exists() || !v.IsArray() {
		return def
	}
	out := make([]string, 0, len(v.Array()))
	for _, item := range v.Array() {
		out = append(out, item.String())
	}
	return out
}

func (c *Config) num(path string, def float64) float64 {
	if v := c.get(path); v.Exists() {
		return v.Float()
	}
	return def
}

// dur reads a millisecond count.
func (c *Config) dur(path string, def time.Duration) time.Duration {
	if v := c.get(path); v.Exists() {
		return time.Duration(v.Int()) * time.Millisecond
	}
	return def
}
