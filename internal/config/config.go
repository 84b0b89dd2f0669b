package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Limits  LimitsConfig  `yaml:"limits" envconfig:"LIMITS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/cytolab.log"`
}

// LimitsConfig contains request rate limiting configuration
type LimitsConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"25"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CYTOLAB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		mergeConfigs(fileCfg, &cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// getConfigFilePath returns the config file location, overridable via env
func getConfigFilePath() string {
	if path := os.Getenv("CYTOLAB_CONFIG_FILE"); path != "" {
		return path
	}
	return "cytolab.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays file values onto the env-derived config. envconfig
// fills unset variables from their default tags, so a zero-value check
// cannot tell "defaulted" from "set"; a file value applies unless the
// matching environment variable is actually present.
func mergeConfigs(file *Config, cfg *Config) {
	unlessEnv := func(envVar string, apply func()) {
		if _, ok := os.LookupEnv(envVar); !ok {
			apply()
		}
	}

	if file.Server.Port != 0 {
		unlessEnv("CYTOLAB_SERVER_PORT", func() { cfg.Server.Port = file.Server.Port })
	}
	if file.Server.ReadTimeout != 0 {
		unlessEnv("CYTOLAB_SERVER_READ_TIMEOUT", func() { cfg.Server.ReadTimeout = file.Server.ReadTimeout })
	}
	if file.Server.WriteTimeout != 0 {
		unlessEnv("CYTOLAB_SERVER_WRITE_TIMEOUT", func() { cfg.Server.WriteTimeout = file.Server.WriteTimeout })
	}
	if file.Server.IdleTimeout != 0 {
		unlessEnv("CYTOLAB_SERVER_IDLE_TIMEOUT", func() { cfg.Server.IdleTimeout = file.Server.IdleTimeout })
	}
	if file.Server.ShutdownTimeout != 0 {
		unlessEnv("CYTOLAB_SERVER_SHUTDOWN_TIMEOUT", func() { cfg.Server.ShutdownTimeout = file.Server.ShutdownTimeout })
	}
	if file.Logging.Level != "" {
		unlessEnv("CYTOLAB_LOGGING_LEVEL", func() { cfg.Logging.Level = file.Logging.Level })
	}
	if file.Logging.Format != "" {
		unlessEnv("CYTOLAB_LOGGING_FORMAT", func() { cfg.Logging.Format = file.Logging.Format })
	}
	if file.Logging.Output != "" {
		unlessEnv("CYTOLAB_LOGGING_OUTPUT", func() { cfg.Logging.Output = file.Logging.Output })
	}
	if file.Logging.FilePath != "" {
		unlessEnv("CYTOLAB_LOGGING_FILE_PATH", func() { cfg.Logging.FilePath = file.Logging.FilePath })
	}
	if file.Paths.DataDir != "" {
		unlessEnv("CYTOLAB_PATHS_DATA_DIR", func() { cfg.Paths.DataDir = file.Paths.DataDir })
	}
	if file.Paths.DatabasePath != "" {
		unlessEnv("CYTOLAB_PATHS_DATABASE_PATH", func() { cfg.Paths.DatabasePath = file.Paths.DatabasePath })
	}
	if file.Paths.OutputDir != "" {
		unlessEnv("CYTOLAB_PATHS_OUTPUT_DIR", func() { cfg.Paths.OutputDir = file.Paths.OutputDir })
	}
	if file.Paths.LogsDir != "" {
		unlessEnv("CYTOLAB_PATHS_LOGS_DIR", func() { cfg.Paths.LogsDir = file.Paths.LogsDir })
	}
	if file.Limits.RPS != 0 {
		unlessEnv("CYTOLAB_LIMITS_RPS", func() { cfg.Limits.RPS = file.Limits.RPS })
	}
	if file.Limits.Burst != 0 {
		unlessEnv("CYTOLAB_LIMITS_BURST", func() { cfg.Limits.Burst = file.Limits.Burst })
	}
}

// validate ensures configuration values are sane
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Limits.Enabled && c.Limits.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive, got %v", c.Limits.RPS)
	}
	return nil
}
