// Package config loads application configuration from a YAML file and
// AINAV_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zczy-k/ai-nav-item/pkg/batch"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Provider ProviderConfig `mapstructure:"provider"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BatchConfig struct {
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	InitialConcurrency int           `mapstructure:"initial_concurrency"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
}

type RedisConfig struct {
	// Addr enables the Redis icon cache when set. Empty disables it.
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	IconTTL  time.Duration `mapstructure:"icon_ttl"`
}

type BackupConfig struct {
	Dir      string        `mapstructure:"dir"`
	Keep     int           `mapstructure:"keep"`
	Debounce time.Duration `mapstructure:"debounce"`
	Interval time.Duration `mapstructure:"interval"`
}

// Policy maps the batch section onto the engine policy, keeping engine
// defaults for everything the config does not expose.
func (c *Config) Policy() batch.Policy {
	p := batch.DefaultPolicy()
	if c.Batch.InitialConcurrency > 0 {
		p.InitialConcurrency = c.Batch.InitialConcurrency
	}
	if c.Batch.MaxConcurrency > 0 {
		p.MaxConcurrency = c.Batch.MaxConcurrency
	}
	return p
}

// Validate checks the loaded configuration for values the application
// cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if d := c.Batch.BaseDelay; d < 500*time.Millisecond || d > 10*time.Second {
		return fmt.Errorf("batch.base_delay %v outside allowed range [500ms, 10s]", d)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("batch concurrency settings: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)

	v.SetDefault("database.path", "data/ainav.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty", false)

	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.timeout", 60*time.Second)

	v.SetDefault("batch.base_delay", 2*time.Second)
	v.SetDefault("batch.initial_concurrency", 3)
	v.SetDefault("batch.max_concurrency", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.icon_ttl", 24*time.Hour)

	v.SetDefault("backup.dir", "data/backups")
	v.SetDefault("backup.keep", 10)
	v.SetDefault("backup.debounce", 5*time.Second)
	v.SetDefault("backup.interval", 6*time.Hour)
}

// Load reads configuration from the given file, applying defaults and
// AINAV_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AINAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
