package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for waterqd.
type Config struct {
	ListenAddr string        `mapstructure:"listen_addr"`
	LogFormat  string        `mapstructure:"log_format"`
	Storage    StorageConfig `mapstructure:"storage"`
	API        APIConfig     `mapstructure:"api"`
	Query      QueryConfig   `mapstructure:"query"`
}

// StorageConfig defines the database backend.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// APIConfig controls the HTTP facade.
type APIConfig struct {
	CORSOrigin string `mapstructure:"cors_origin"` // empty disables CORS headers
}

// QueryConfig bounds the nearest-observation query.
type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

var envReplacer = strings.NewReplacer(".", "_")

// Load reads configuration from flag path, env vars, then default file paths.
// Precedence: flag → $WATERQD_CONFIG env → ~/.config/waterqd/config.yaml → /etc/waterqd/config.yaml
// A .env file in the working directory, if present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_format", "json")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "water_quality.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("api.cors_origin", "")
	v.SetDefault("query.default_limit", 10)
	v.SetDefault("query.max_limit", 1000)

	// Env var support: WATERQD_STORAGE_POSTGRES_DSN etc.
	v.SetEnvPrefix("WATERQD")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv("WATERQD_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "waterqd"))
		}
		v.AddConfigPath("/etc/waterqd")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		// Warn if config file is world-readable; it may hold a postgres password.
		if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
			if info, err := os.Stat(cfgPath); err == nil {
				perm := info.Mode().Perm()
				if perm&0004 != 0 {
					slog.Warn("config file is world-readable", "path", cfgPath, "permissions", fmt.Sprintf("%04o", perm))
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete and correct.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite driver")
		}
		dir := filepath.Dir(c.Storage.SQLite.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("creating storage directory %q: %w", dir, err)
			}
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be 'sqlite' or 'postgres', got %q", c.Storage.Driver)
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q is not a valid address: %w", c.ListenAddr, err)
	}

	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}

	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive, got %d", c.Query.DefaultLimit)
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query.max_limit (%d) must be >= query.default_limit (%d)", c.Query.MaxLimit, c.Query.DefaultLimit)
	}

	return nil
}

// DSN returns the appropriate DSN for the configured storage driver.
func (c *Config) DSN() string {
	switch c.Storage.Driver {
	case "sqlite":
		return c.Storage.SQLite.Path
	case "postgres":
		return c.Storage.Postgres.DSN
	default:
		return ""
	}
}
