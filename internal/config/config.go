package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/xtrntr/brokerclient/internal/logging"
)

// Config holds everything the client binaries read at startup
type Config struct {
	API        APIConfig      `mapstructure:"api"`
	Session    SessionConfig  `mapstructure:"session"`
	Console    ConsoleConfig  `mapstructure:"console"`
	FakeBroker FakeConfig     `mapstructure:"fakebroker"`
	Logger     logging.Config `mapstructure:"logger"`
}

// APIConfig locates the brokerage backend
type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	HealthURL string `mapstructure:"health_url"`
}

// SessionConfig selects where the identity record is persisted
type SessionConfig struct {
	Backend       string `mapstructure:"backend"` // file, postgres or redis
	Dir           string `mapstructure:"dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type ConsoleConfig struct {
	Addr string `mapstructure:"addr"`
}

type FakeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads an optional config file, then BROKER_* environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot start with
func (c *Config) Validate() error {
	if err := checkURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if err := checkURL("api.health_url", c.API.HealthURL); err != nil {
		return err
	}
	switch c.Session.Backend {
	case "file":
		if c.Session.Dir == "" {
			return errors.New("session.dir is required for the file backend")
		}
	case "postgres":
		if c.Session.PostgresDSN == "" {
			return errors.New("session.postgres_dsn is required for the postgres backend")
		}
	case "redis":
		if c.Session.RedisAddr == "" {
			return errors.New("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", key)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", key)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080/api")
	v.SetDefault("api.health_url", "http://localhost:8080")

	v.SetDefault("session.backend", "file")
	v.SetDefault("session.dir", defaultSessionDir())
	v.SetDefault("session.postgres_dsn", "")
	v.SetDefault("session.redis_addr", "")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)

	v.SetDefault("console.addr", ":3000")
	v.SetDefault("fakebroker.addr", ":8080")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/brokerclient.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brokerctl"
	}
	return filepath.Join(home, ".brokerctl")
}
