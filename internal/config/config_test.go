package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
port: "9000"
restreamer:
  base_url: http://restreamer:8080
  username: admin
  timeout: 5s
engine:
  monitor_tick: 2s
  fail_fast: true
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "http://restreamer:8080", cfg.Restreamer.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Restreamer.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Engine.MonitorTick)
	assert.True(t, cfg.Engine.FailFast)
	assert.Equal(t, 8, cfg.Engine.Parallelism, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Summary.TTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = "http" }, `port "http"`},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "must be 1-65535"},
		{"no redis", func(c *Config) { c.Redis.Address = "" }, "redis.address required"},
		{"bad base url", func(c *Config) { c.Restreamer.BaseURL = "ftp://x" }, "restreamer.base_url"},
		{"mqtt without client id", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.ClientID = ""
		}, "mqtt.client_id required"},
		{"negative parallelism", func(c *Config) { c.Engine.Parallelism = -1 }, "engine.parallelism"},
		{"zero shutdown timeout", func(c *Config) { c.Engine.ShutdownTimeout = 0 }, "engine.shutdown_timeout"},
		{"negative ttl", func(c *Config) { c.Summary.TTL = -time.Second }, "summary durations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "zmux-restream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1]\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "decode")

	require.NoError(t, os.WriteFile(path, []byte("redis:\n  address: redis:6379\n  db: 2\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
}
