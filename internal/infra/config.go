package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the gateway reads. Secrets loaded from the
// file are overridden by environment variables before validation.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr      string `yaml:"addr"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"server"`

	API struct {
		Breeze struct {
			RestURL      string `yaml:"rest_url"`
			WSURL        string `yaml:"ws_url"`
			APIKey       string `yaml:"api_key"`
			APISecret    string `yaml:"api_secret"`
			SessionToken string `yaml:"session_token"`
		} `yaml:"breeze"`
	} `yaml:"api"`

	Pacing struct {
		MinIntervalMS  int `yaml:"min_interval_ms"`
		Capacity       int `yaml:"capacity"`
		EnqueueWaitSec int `yaml:"enqueue_wait_sec"`
	} `yaml:"pacing"`

	Relay struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
		HeartbeatEvery int `yaml:"heartbeat_every"`
	} `yaml:"relay"`

	Orders struct {
		JoinTimeoutSec int    `yaml:"join_timeout_sec"`
		JournalPath    string `yaml:"journal_path"`
	} `yaml:"orders"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Pacing.MinIntervalMS <= 0 {
		c.Pacing.MinIntervalMS = 600
	}
	if c.Pacing.Capacity <= 0 {
		c.Pacing.Capacity = 50
	}
	if c.Pacing.EnqueueWaitSec <= 0 {
		c.Pacing.EnqueueWaitSec = 45
	}
	if c.Relay.PollIntervalMS <= 0 {
		c.Relay.PollIntervalMS = 500
	}
	if c.Relay.HeartbeatEvery <= 0 {
		c.Relay.HeartbeatEvery = 10
	}
	if c.Orders.JoinTimeoutSec <= 0 {
		c.Orders.JoinTimeoutSec = 60
	}
	if c.Orders.JournalPath == "" {
		c.Orders.JournalPath = "orders.db"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.API.Breeze.RestURL == "" || !strings.HasPrefix(c.API.Breeze.RestURL, "http") {
		return fmt.Errorf("invalid Breeze REST URL: %s", c.API.Breeze.RestURL)
	}
	if c.API.Breeze.WSURL != "" &&
		!strings.HasPrefix(c.API.Breeze.WSURL, "ws://") && !strings.HasPrefix(c.API.Breeze.WSURL, "wss://") {
		return fmt.Errorf("invalid Breeze WS URL: %s", c.API.Breeze.WSURL)
	}
	if c.API.Breeze.APIKey == "" || c.API.Breeze.APISecret == "" {
		return fmt.Errorf("breeze api_key and api_secret are required")
	}
	// auth_token stays optional: an empty token disables the terminal
	// auth middleware entirely.
	return nil
}

// PacingInterval returns the minimum spacing between broker calls.
func (c *Config) PacingInterval() time.Duration {
	return time.Duration(c.Pacing.MinIntervalMS) * time.Millisecond
}

// EnqueueWait returns how long callers wait for a slot before timing out.
func (c *Config) EnqueueWait() time.Duration {
	return time.Duration(c.Pacing.EnqueueWaitSec) * time.Second
}

// RelayInterval returns the relay poll period.
func (c *Config) RelayInterval() time.Duration {
	return time.Duration(c.Relay.PollIntervalMS) * time.Millisecond
}

// JoinTimeout returns the multi-leg order join bound.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Orders.JoinTimeoutSec) * time.Second
}

// overrideWithEnv replaces file values with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("OPTIONGATE_API_KEY"); key != "" {
		cfg.API.Breeze.APIKey = key
	}
	if secret := os.Getenv("OPTIONGATE_API_SECRET"); secret != "" {
		cfg.API.Breeze.APISecret = secret
	}
	if token := os.Getenv("OPTIONGATE_SESSION_TOKEN"); token != "" {
		cfg.API.Breeze.SessionToken = token
	}
	if token := os.Getenv("OPTIONGATE_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
}
