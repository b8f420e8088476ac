// Package config provides hierarchical configuration loading for the Mito AI
// server. Precedence: defaults < YAML file < environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime configuration for the server and the eval runner.
type Config struct {
	Server    Server    `yaml:"server"`
	Providers Providers `yaml:"providers"`
	Quota     Quota     `yaml:"quota"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Telemetry Telemetry `yaml:"telemetry"`
	EvalDB    EvalDB    `yaml:"eval_db"`
	OTel      OTel      `yaml:"otel"`
	Cache     Cache     `yaml:"cache"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Providers holds LLM provider keys and model selection. The key fields are
// env-only; they never appear in YAML so config files stay shareable.
type Providers struct {
	OpenAIKey       string `yaml:"-"`
	ClaudeKey       string `yaml:"-"`
	GeminiKey       string `yaml:"-"`
	AzureKey        string `yaml:"-"`
	AzureEndpoint   string `yaml:"-"`
	AzureModel      string `yaml:"-"`
	AzureAPIVersion string `yaml:"-"`
	OllamaModel     string `yaml:"ollama_model"`
	OllamaURL       string `yaml:"ollama_url"`
	RelayURL        string `yaml:"relay_url"`

	Model       string        `yaml:"model"`        // default chat model
	InlineModel string        `yaml:"inline_model"` // small/fast model for inline completion
	Timeout     time.Duration `yaml:"timeout"`      // chat completion timeout
	ToolTimeout time.Duration `yaml:"tool_timeout"` // structured tool-call path timeout
}

// Quota holds the free-tier cap policy and the Mito home folder.
type Quota struct {
	HomeFolder       string `yaml:"home_folder"`
	Pro              bool   `yaml:"pro"`
	Enterprise       bool   `yaml:"enterprise"`
	MaxChatUsages    int    `yaml:"max_chat_usages"`
	MaxAutocompletes int    `yaml:"max_autocompletes"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for provider HTTP calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds the best-effort event sink configuration. An empty URL
// disables the NATS publisher.
type Telemetry struct {
	NATSURL string `yaml:"nats_url"`
}

// EvalDB holds the optional Postgres archive for eval-run results. An empty
// DSN disables archiving.
type EvalDB struct {
	DSN string `yaml:"dsn"`
}

// OTel holds OpenTelemetry exporter configuration. An empty endpoint keeps
// all instrumentation as no-ops.
type OTel struct {
	Endpoint string `yaml:"endpoint"`
}

// Cache holds the inline-completion result cache configuration.
type Cache struct {
	InlineTTL   time.Duration `yaml:"inline_ttl"`
	InlineMaxMB int64         `yaml:"inline_max_mb"`
}

// ThreadsDir returns the directory holding one JSON file per chat thread.
func (c *Config) ThreadsDir() string {
	return filepath.Join(c.Quota.HomeFolder, "ai-chats")
}

// UserFile returns the path of the per-user usage record.
func (c *Config) UserFile() string {
	return filepath.Join(c.Quota.HomeFolder, "user.json")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Server: Server{
			Port:       "8888",
			CORSOrigin: "http://localhost:8888",
		},
		Providers: Providers{
			OllamaURL:   "http://localhost:11434",
			RelayURL:    "https://ogtzairktg.execute-api.us-east-1.amazonaws.com/Prod/completions/",
			Model:       "gpt-4o-mini",
			InlineModel: "gpt-4o-mini",
			Timeout:     30 * time.Second,
			ToolTimeout: 60 * time.Second,
		},
		Quota: Quota{
			HomeFolder:       filepath.Join(home, ".mito"),
			MaxChatUsages:    500,
			MaxAutocompletes: 500,
		},
		Logging: Logging{
			Level:   "info",
			Service: "mito-ai",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			InlineTTL:   30 * time.Second,
			InlineMaxMB: 16,
		},
	}
}
