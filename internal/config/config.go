// Package config loads the zmux-restream YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "zmux-restream.yaml"

type Config struct {
	Address string `yaml:"address"`
	Port    string `yaml:"port"`

	// TrustedProxies are honoured for X-Forwarded-* outside dev mode.
	TrustedProxies []string `yaml:"trusted_proxies"`
	// MaxConcurrentRequests caps in-flight API requests; 0 disables the limit.
	MaxConcurrentRequests int64 `yaml:"max_concurrent_requests"`

	Redis      Redis      `yaml:"redis"`
	Restreamer Restreamer `yaml:"restreamer"`
	MQTT       MQTT       `yaml:"mqtt"`
	Engine     Engine     `yaml:"engine"`
	Summary    Summary    `yaml:"summary"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Restreamer points at the remote process-execution service. An empty
// base_url starts the server without a client.
type Restreamer struct {
	BaseURL       string        `yaml:"base_url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LoginRate     float64       `yaml:"login_rate"` // attempts per second
}

// MQTT is optional; events are dropped when broker is empty.
type MQTT struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type Engine struct {
	MonitorTick     time.Duration `yaml:"monitor_tick"`
	Parallelism     int           `yaml:"parallelism"`
	FailFast        bool          `yaml:"fail_fast"`
	AutoStart       bool          `yaml:"auto_start"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Summary struct {
	TTL               time.Duration `yaml:"ttl"`
	RefreshTimeout    time.Duration `yaml:"refresh_timeout"`
	AllowStaleOnError bool          `yaml:"allow_stale_on_error"`
}

// Default returns a configuration usable against a local Redis.
func Default() Config {
	return Config{
		Address:               "0.0.0.0",
		Port:                  "8080",
		TrustedProxies:        []string{"127.0.0.1"},
		MaxConcurrentRequests: 64,
		Redis:                 Redis{Address: "localhost:6379"},
		MQTT: MQTT{
			ClientID:    "zmux-restream",
			TopicPrefix: "zmux-restream",
		},
		Engine: Engine{
			MonitorTick:     time.Second,
			Parallelism:     8,
			AutoStart:       true,
			ShutdownTimeout: 15 * time.Second,
		},
		Summary: Summary{
			TTL:               250 * time.Millisecond,
			RefreshTimeout:    300 * time.Millisecond,
			AllowStaleOnError: true,
		},
	}
}

// Load reads path over the defaults. A missing file is an error; use
// Default directly to run without one.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document leaves unset,
// and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return cfg.Validate()
}

// ListenAddr joins address and port.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q: must be 1-65535", c.Port))
	}
	if c.MaxConcurrentRequests < 0 {
		errs = append(errs, errors.New("max_concurrent_requests cannot be negative"))
	}
	if c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address required"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis.db cannot be negative"))
	}
	if c.Restreamer.BaseURL != "" {
		u, err := url.Parse(c.Restreamer.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("restreamer.base_url %q: must be an http(s) URL", c.Restreamer.BaseURL))
		}
	}
	if c.Restreamer.LoginRate < 0 {
		errs = append(errs, errors.New("restreamer.login_rate cannot be negative"))
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		errs = append(errs, errors.New("mqtt.client_id required with a broker"))
	}
	if c.Engine.MonitorTick < 0 {
		errs = append(errs, errors.New("engine.monitor_tick cannot be negative"))
	}
	if c.Engine.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("engine.shutdown_timeout must be positive"))
	}
	if c.Engine.Parallelism < 0 {
		errs = append(errs, errors.New("engine.parallelism cannot be negative"))
	}
	if c.Summary.TTL < 0 || c.Summary.RefreshTimeout < 0 {
		errs = append(errs, errors.New("summary durations cannot be negative"))
	}

	return errors.Join(errs...)
}
