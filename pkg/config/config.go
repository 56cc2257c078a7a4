package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Store struct {
		Path          string        `yaml:"path"`
		BusyRetries   int           `yaml:"busy_retries"`
		RetryBackoff  time.Duration `yaml:"retry_backoff"`
		RetentionDays int           `yaml:"retention_days"`
		PruneInterval time.Duration `yaml:"prune_interval"`
	} `yaml:"store"`
	Controller struct {
		HysteresisBars    int           `yaml:"hysteresis_bars"`
		BufferCapacity    int           `yaml:"buffer_capacity"`
		WeakGradient      float64       `yaml:"weak_gradient"`
		DecelThreshold    float64       `yaml:"decel_threshold"`
		AutoApplyEnabled  bool          `yaml:"auto_apply_enabled"`
		RecoveryFile      string        `yaml:"recovery_file"`
		SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
		ArtifactPaths     []string      `yaml:"artifact_paths"`
		PerformanceWindow int           `yaml:"performance_window"`
	} `yaml:"controller"`
	Archive struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		BufferSize       int           `yaml:"buffer_size"`
	} `yaml:"archive"`
	Audit struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
	} `yaml:"audit"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Stream struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"stream"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Audit.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Audit.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.Archive.Host = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Store.BusyRetries == 0 {
		c.Store.BusyRetries = 3
	}
	if c.Store.RetryBackoff == 0 {
		c.Store.RetryBackoff = 25 * time.Millisecond
	}
	if c.Store.PruneInterval == 0 {
		c.Store.PruneInterval = time.Hour
	}
	if c.Controller.HysteresisBars == 0 {
		c.Controller.HysteresisBars = 2
	}
	if c.Controller.BufferCapacity == 0 {
		c.Controller.BufferCapacity = 500
	}
	if c.Controller.WeakGradient == 0 {
		c.Controller.WeakGradient = 0.05
	}
	if c.Controller.DecelThreshold == 0 {
		c.Controller.DecelThreshold = 0.02
	}
	if c.Controller.RecoveryFile == "" {
		c.Controller.RecoveryFile = "overrides_recovery.json"
	}
	if c.Controller.PerformanceWindow == 0 {
		c.Controller.PerformanceWindow = 50
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Second
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = 256
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = 2000
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Audit.Enabled && len(c.Audit.Brokers) == 0 {
		return fmt.Errorf("audit.brokers cannot be empty when audit export is enabled")
	}
	if c.Audit.Enabled && c.Audit.Topic == "" {
		return fmt.Errorf("audit.topic is required when audit export is enabled")
	}
	if c.Archive.Enabled && c.Archive.Host == "" {
		return fmt.Errorf("archive.host is required when the archive mirror is enabled")
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when redis is enabled")
	}
	return nil
}
