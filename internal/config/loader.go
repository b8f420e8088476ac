package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "mito-ai.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MITO_AI_PORT")
	setString(&cfg.Server.CORSOrigin, "MITO_AI_CORS_ORIGIN")

	// Provider keys are env-only.
	setString(&cfg.Providers.OpenAIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.ClaudeKey, "CLAUDE_API_KEY")
	setString(&cfg.Providers.GeminiKey, "GEMINI_API_KEY")
	setString(&cfg.Providers.AzureKey, "AZURE_OPENAI_API_KEY")
	setString(&cfg.Providers.AzureEndpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&cfg.Providers.AzureModel, "AZURE_OPENAI_MODEL")
	setString(&cfg.Providers.AzureAPIVersion, "AZURE_OPENAI_API_VERSION")
	setString(&cfg.Providers.OllamaModel, "OLLAMA_MODEL")
	setString(&cfg.Providers.OllamaURL, "OLLAMA_URL")
	setString(&cfg.Providers.RelayURL, "MITO_AI_RELAY_URL")
	setString(&cfg.Providers.Model, "MITO_AI_MODEL")
	setString(&cfg.Providers.InlineModel, "MITO_AI_INLINE_MODEL")
	setDuration(&cfg.Providers.Timeout, "MITO_AI_TIMEOUT")
	setDuration(&cfg.Providers.ToolTimeout, "MITO_AI_TOOL_TIMEOUT")

	setString(&cfg.Quota.HomeFolder, "MITO_CONFIG_HOME_FOLDER")
	setBool(&cfg.Quota.Pro, "MITO_CONFIG_PRO")
	setBool(&cfg.Quota.Enterprise, "MITO_CONFIG_ENTERPRISE")
	setInt(&cfg.Quota.MaxChatUsages, "MITO_AI_MAX_CHAT_USAGES")
	setInt(&cfg.Quota.MaxAutocompletes, "MITO_AI_MAX_AUTOCOMPLETES")

	setString(&cfg.Logging.Level, "MITO_AI_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MITO_AI_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MITO_AI_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "MITO_AI_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MITO_AI_BREAKER_TIMEOUT")

	setString(&cfg.Telemetry.NATSURL, "MITO_AI_TELEMETRY_NATS_URL")
	setString(&cfg.EvalDB.DSN, "MITO_AI_EVAL_DB_DSN")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setDuration(&cfg.Cache.InlineTTL, "MITO_AI_INLINE_CACHE_TTL")
	setInt64(&cfg.Cache.InlineMaxMB, "MITO_AI_INLINE_CACHE_MAX_MB")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Quota.HomeFolder == "" {
		return errors.New("quota.home_folder is required")
	}
	if cfg.Providers.RelayURL == "" {
		return errors.New("providers.relay_url is required")
	}
	if cfg.Providers.Timeout <= 0 {
		return errors.New("providers.timeout must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Quota.MaxChatUsages < 1 || cfg.Quota.MaxAutocompletes < 1 {
		return errors.New("quota caps must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
