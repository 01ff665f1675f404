// Package config provides configuration loading for the querylens CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	// Storage selects and configures the fact store.
	Storage StorageConfig `mapstructure:"storage"`

	// Connections is the path to the warehouse connections YAML file.
	Connections string `mapstructure:"connections"`

	// Gemini configures the advisory generator.
	Gemini GeminiConfig `mapstructure:"gemini"`

	// Logging configuration.
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is "duckdb" or "postgres".
	Backend string `mapstructure:"backend"`

	// Path is the DuckDB database file (":memory:" for none).
	Path string `mapstructure:"path"`

	// Postgres holds the PostgreSQL connection settings.
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnectionString renders the lib/pq DSN.
func (c PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GeminiConfig configures the advisory generator.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment. Environment variables
// use the QUERYLENS_ prefix.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".querylens"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("QUERYLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "duckdb")
	v.SetDefault("storage.path", "querylens.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "querylens")
	v.SetDefault("storage.postgres.password", "querylens_dev")
	v.SetDefault("storage.postgres.name", "querylens")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("connections", "connections.yaml")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.max_output_tokens", 8192)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
