package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the plain environment variables the desktop
// tool has always honoured (usually via a .env file next to the binary).
var envBindings = map[string]string{
	"summarizer.anthropic_api_key": "ANTHROPIC_API_KEY",
	"summarizer.openai_api_key":    "OPENAI_API_KEY",
	"summarizer.provider":          "AI_PROVIDER",
	"summarizer.model":             "AI_MODEL",
}

// Load loads configuration from .env, the config file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	config := GetDefaults()

	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/doc-sentinel/")
	v.AddConfigPath("$HOME/.doc-sentinel/")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, "SENTINEL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Summarizer.Provider != "anthropic" && config.Summarizer.Provider != "openai" {
		return fmt.Errorf("invalid summarizer provider: %s (must be anthropic or openai)", config.Summarizer.Provider)
	}

	if config.SessionStore.Type != "memory" && config.SessionStore.Type != "redis" {
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", config.SessionStore.Type)
	}

	if config.Audit.Enabled && config.Audit.Driver != "postgres" && config.Audit.Driver != "sqlite" {
		return fmt.Errorf("invalid audit driver: %s (must be postgres or sqlite)", config.Audit.Driver)
	}

	if config.Review.ContextWindow < 0 {
		return fmt.Errorf("invalid review context window: %d", config.Review.ContextWindow)
	}

	if config.ETL.WorkerCount <= 0 || config.ETL.BatchSize <= 0 {
		return fmt.Errorf("invalid etl settings: batch_size=%d worker_count=%d", config.ETL.BatchSize, config.ETL.WorkerCount)
	}

	return nil
}

// APIKey returns the key for the configured summarizer provider
func (c SummarizerConfig) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	}
	return ""
}

// Watch starts watching the configuration file for changes. Invalid
// intermediate edits are reported through onError and otherwise ignored.
func Watch(configPath string, callback func(*Config), onError func(error)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return errors.New("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			onError(fmt.Errorf("invalid configuration in %s: %w", e.Name, err))
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
