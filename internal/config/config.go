// Package config loads layered configuration: defaults, then a YAML file,
// then DOCGUARD_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/docguard/")
	viper.AddConfigPath("$HOME/.docguard/")

	viper.SetEnvPrefix("DOCGUARD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration.
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	switch config.Audit.Backend {
	case "", "file", "postgres":
	default:
		return fmt.Errorf("invalid audit backend: %s (must be file or postgres)", config.Audit.Backend)
	}

	if config.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval top_k: %d", config.Retrieval.TopK)
	}

	if config.Eval.Format != "json" && config.Eval.Format != "markdown" {
		return fmt.Errorf("invalid eval format: %s (must be json or markdown)", config.Eval.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// receives each valid reloaded configuration; invalid reloads are dropped.
func Watch(callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			return
		}
		if err := validateConfig(newConfig); err != nil {
			return
		}
		callback(newConfig)
	})

	return nil
}
