package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envKeys are bound explicitly so ANONYMIZER_* variables reach Unmarshal
// even when no config file mentions them.
var envKeys = []string{
	"date_format", "date_regex", "name_regex", "email_regex", "phone_regex", "address_regex",
	"generator.seed",
	"logging.level", "logging.format",
	"lookup.sink", "lookup.path", "lookup.dir", "lookup.redis.url", "lookup.postgres.database_url",
	"server.port",
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config, _, err := load(configPath)
	return config, err
}

// LoadAndWatch loads configuration and calls onChange with every valid
// reloaded version of the file. Invalid edits are reported to onError and
// otherwise ignored. Watching is skipped when no config file was found.
func LoadAndWatch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	config, v, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return config, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal reloaded config: %w", err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("invalid reloaded configuration: %w", err))
			}
			return
		}

		onChange(newConfig)
	})
	v.WatchConfig()

	return config, nil
}

func load(configPath string) (*Config, *viper.Viper, error) {
	// Set defaults
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("anonymizer")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("$HOME/.anonymizer/")

	// Environment variable overrides
	v.SetEnvPrefix("ANONYMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// Only a searched-for file may be absent; an explicit path must exist
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, v, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if !ValidLogLevel(config.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warning, error, or critical)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	switch config.Lookup.Sink {
	case "file", "redis", "postgres", "none":
	default:
		return fmt.Errorf("invalid lookup sink: %s (must be file, redis, postgres, or none)", config.Lookup.Sink)
	}

	if config.Lookup.Sink == "postgres" && config.Lookup.Postgres.DatabaseURL == "" {
		return fmt.Errorf("lookup.postgres.database_url is required for the postgres sink")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.RateLimit.Enabled && (config.Server.RateLimit.RequestsPerSecond <= 0 || config.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	if config.Batch.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", config.Batch.BatchSize)
	}

	return nil
}

// ValidLogLevel reports whether level is one of the accepted level names,
// including the DEBUG/INFO/WARNING/ERROR/CRITICAL spellings.
func ValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error", "critical":
		return true
	}
	return false
}
