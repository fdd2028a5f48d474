// Package config loads the daemon configuration from YAML with environment
// overrides. Precedence, lowest to highest: built-in defaults, config file,
// CADENCE_* environment variables, command-line flags (applied by the
// caller).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"

	"cadence/pkg/logger"
)

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	User       UserConfig       `yaml:"user"`
	Backend    BackendConfig    `yaml:"backend"`
	Generation GenerationConfig `yaml:"generation"`
	Fragment   FragmentConfig   `yaml:"fragment"`
	Queue      QueueConfig      `yaml:"queue"`
	Sequence   SequenceConfig   `yaml:"sequence"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Cache      CacheConfig      `yaml:"cache"`
	Retention  RetentionConfig  `yaml:"retention"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the local ops HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// UserConfig identifies the local user.
type UserConfig struct {
	ID string `yaml:"id"`
}

// BackendConfig points at the remote message/conversation API.
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// GenerationConfig points at the reply generation service.
type GenerationConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
	// Rate caps generations per second; Burst allows short spikes.
	Rate          float64 `yaml:"rate"`
	Burst         int     `yaml:"burst"`
	FallbackReply string  `yaml:"fallback_reply"`
	ApologyReply  string  `yaml:"apology_reply"`
}

// FragmentConfig tunes reply fragmentation and pacing.
type FragmentConfig struct {
	MaxLen        int      `yaml:"max_len"`
	ThinkingDelay Duration `yaml:"thinking_delay"`
	TypingPerChar Duration `yaml:"typing_per_char"`
	MinDelay      Duration `yaml:"min_delay"`
	MaxDelay      Duration `yaml:"max_delay"`
}

// QueueConfig tunes the outbound message queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// SequenceConfig tunes fragment playback.
type SequenceConfig struct {
	Pause Duration `yaml:"pause"`
}

// MetadataConfig tunes the conversation metadata updater.
type MetadataConfig struct {
	Debounce Duration `yaml:"debounce"`
}

// CacheConfig locates the durable local cache.
type CacheConfig struct {
	Path string `yaml:"path"`
	// MaxSize caps the total bytes of cached transcript snapshots; the
	// retention sweep trims oldest-first down to it. Zero means unbounded.
	MaxSize Size `yaml:"max_size"`
}

// RetentionConfig schedules the cached-transcript sweep.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// MaxAge drops cached snapshots older than this.
	MaxAge Duration `yaml:"max_age"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// Load reads path (optional), applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		logger.Info("config_loaded", "path", path)
	}
	cfg.applyEnv()
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CADENCE_OPS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CADENCE_USER_ID"); v != "" {
		c.User.ID = v
	}
	if v := os.Getenv("CADENCE_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CADENCE_BACKEND_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("CADENCE_GEN_URL"); v != "" {
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("CADENCE_GEN_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("CADENCE_GEN_TIMEOUT"); v != "" {
		if d, err := parseDuration(v); err == nil {
			c.Generation.Timeout = Duration(d)
		} else {
			logger.Warn("bad_env_duration", "var", "CADENCE_GEN_TIMEOUT", "value", v)
		}
	}
	if v := os.Getenv("CADENCE_DB_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("CADENCE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CADENCE_LOG_SINK"); v != "" {
		c.Logging.Sink = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8765"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = Duration(10 * time.Second)
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = Duration(10 * time.Second)
	}
	if c.Generation.Rate <= 0 {
		c.Generation.Rate = 1
	}
	if c.Generation.Burst <= 0 {
		c.Generation.Burst = 3
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 4 * 1024
	}
	if c.Metadata.Debounce <= 0 {
		c.Metadata.Debounce = Duration(500 * time.Millisecond)
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "./data/cache"
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 3 * * *"
	}
	if c.Retention.MaxAge <= 0 {
		c.Retention.MaxAge = Duration(30 * 24 * time.Hour)
	}
}

func (c *Config) validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("user.id is required (or CADENCE_USER_ID)")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required (or CADENCE_BACKEND_URL)")
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("generation.base_url is required (or CADENCE_GEN_URL)")
	}
	if c.Retention.Enabled && !gronx.New().IsValid(c.Retention.Cron) {
		return fmt.Errorf("retention.cron %q is not a valid cron expression", c.Retention.Cron)
	}
	return nil
}
