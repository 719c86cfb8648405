package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, "http://localhost:8080", cfg.API.HealthURL)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.NotEmpty(t, cfg.Session.Dir)
	assert.Equal(t, ":3000", cfg.Console.Addr)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BROKER_API_BASE_URL", "https://broker.example.com/api")
	t.Setenv("BROKER_SESSION_BACKEND", "redis")
	t.Setenv("BROKER_SESSION_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://broker.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "localhost:6379", cfg.Session.RedisAddr)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	content := "api:\n  base_url: http://10.0.0.5:8080/api\nsession:\n  backend: postgres\n  postgres_dsn: postgres://u:p@localhost/broker\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080/api", cfg.API.BaseURL)
	assert.Equal(t, "postgres", cfg.Session.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:     APIConfig{BaseURL: "http://localhost:8080/api", HealthURL: "http://localhost:8080"},
			Session: SessionConfig{Backend: "file", Dir: "/tmp/brokerctl"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Bad scheme", func(c *Config) { c.API.BaseURL = "ftp://localhost/api" }},
		{"Missing host", func(c *Config) { c.API.HealthURL = "http://" }},
		{"Unknown backend", func(c *Config) { c.Session.Backend = "memcache" }},
		{"Postgres without DSN", func(c *Config) { c.Session.Backend = "postgres" }},
		{"Redis without addr", func(c *Config) { c.Session.Backend = "redis" }},
		{"File without dir", func(c *Config) { c.Session.Dir = "" }},
	}

	base := valid()
	assert.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
