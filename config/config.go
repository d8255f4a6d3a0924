// Package config loads the bookflow configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig holds run execution tunables.
type EngineConfig struct {
	RunTimeout      Duration `yaml:"run_timeout"`
	EventBufferSize int      `yaml:"event_buffer_size"`
}

// SessionConfig holds session persistence tunables.
type SessionConfig struct {
	// Driver is "memory" or "redis".
	Driver     string   `yaml:"driver"`
	TTL        Duration `yaml:"ttl"`
	MaxTurns   int      `yaml:"max_turns"`
	KeepRecent int      `yaml:"keep_recent"`
	RedisAddr  string   `yaml:"redis_addr"`
}

// ReasonerConfig selects and tunes the reasoning provider.
type ReasonerConfig struct {
	// Provider is "openai" or "anthropic".
	Provider   string   `yaml:"provider"`
	Model      string   `yaml:"model"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// ToolsConfig holds tool execution tunables.
type ToolsConfig struct {
	CallTimeout Duration `yaml:"call_timeout"`
}

// Config is the full application configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Session  SessionConfig  `yaml:"session"`
	Reasoner ReasonerConfig `yaml:"reasoner"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RunTimeout:      Duration(60 * time.Second),
			EventBufferSize: 64,
		},
		Session: SessionConfig{
			Driver:     "memory",
			TTL:        Duration(30 * time.Minute),
			MaxTurns:   10,
			KeepRecent: 4,
			RedisAddr:  "localhost:6379",
		},
		Reasoner: ReasonerConfig{
			Provider:   "openai",
			Timeout:    Duration(15 * time.Second),
			MaxRetries: 1,
		},
		Tools: ToolsConfig{
			CallTimeout: Duration(10 * time.Second),
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. A missing file is fine: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BOOKFLOW_SESSION_DRIVER"); v != "" {
		cfg.Session.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("BOOKFLOW_REASONER_PROVIDER"); v != "" {
		cfg.Reasoner.Provider = v
	}
	if v := os.Getenv("BOOKFLOW_REASONER_MODEL"); v != "" {
		cfg.Reasoner.Model = v
	}
	if v := os.Getenv("BOOKFLOW_SESSION_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Session.TTL = Duration(parsed)
		}
	}
	if v := os.Getenv("BOOKFLOW_RUN_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RunTimeout = Duration(parsed)
		}
	}
	if v := os.Getenv("BOOKFLOW_EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.EventBufferSize = n
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Session.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session driver %q", c.Session.Driver)
	}
	switch c.Reasoner.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown reasoner provider %q", c.Reasoner.Provider)
	}
	if c.Engine.RunTimeout.Std() <= 0 {
		return fmt.Errorf("run_timeout must be positive")
	}
	if c.Session.KeepRecent >= c.Session.MaxTurns {
		return fmt.Errorf("keep_recent (%d) must be below max_turns (%d)",
			c.Session.KeepRecent, c.Session.MaxTurns)
	}
	return nil
}
