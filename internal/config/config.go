// Package config loads service settings from an optional .env file, an
// optional YAML file and FOREST_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOREST_"

// Config holds all service settings
type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	Server   ServerConfig      `yaml:"server"`
	Logging  LoggingConfig     `yaml:"logging"`
	Indexing IndexingConfig    `yaml:"indexing"`
	Patterns map[string]string `yaml:"patterns"`
}

// DatabaseConfig describes the index store
type DatabaseConfig struct {
	// Location is a SQLite file, ":memory:" or a postgres:// URL.
	Location        string        `yaml:"location"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
}

// ServerConfig describes the HTTP API listener
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// IndexingConfig controls which files get indexed
type IndexingConfig struct {
	Directory   string `yaml:"directory"`
	FilePattern string `yaml:"file_pattern"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Location:        "forest.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Indexing: IndexingConfig{
			Directory:   ".",
			FilePattern: "*.nc",
		},
		Patterns: map[string]string{},
	}
}

// Load builds the configuration. path names an optional YAML file; when
// it is empty only defaults and the environment apply. envFiles default
// to ".env"; missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Patterns == nil {
			cfg.Patterns = map[string]string{}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Location, "DATABASE")
	setString(&c.Server.Host, "HOST")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Indexing.Directory, "DATA_DIR")
	setString(&c.Indexing.FilePattern, "FILE_PATTERN")

	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS"); err != nil {
		return err
	}
	if err := setDuration(&c.Server.ReadTimeout, "READ_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Server.WriteTimeout, "WRITE_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Database.BusyTimeout, "DB_BUSY_TIMEOUT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Location) == "" {
		return errors.New("database location is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Indexing.FilePattern == "" {
		return errors.New("indexing file pattern is required")
	}
	for name, pattern := range c.Patterns {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("pattern %q must have a name and a glob", name)
		}
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s%s: %q", EnvPrefix, key, v)
	}
	*dst = d
	return nil
}
