// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configRoot wraps GlobalConfig so the YAML file can nest everything under a
// single `distributor:` root key.
type configRoot struct {
	Distributor GlobalConfig `mapstructure:"distributor"`
}

// GlobalConfig is the top-level static configuration.
type GlobalConfig struct {
	Server                Server      `mapstructure:"server"`
	TaskTimeout           string      `mapstructure:"task_timeout"`
	MonitorInterval       string      `mapstructure:"monitor_interval"`
	MaxRetries            int         `mapstructure:"max_retries"`
	BackpressureThreshold int         `mapstructure:"backpressure_threshold"`
	Pool                  PoolConfig  `mapstructure:"pool"`
	Metrics               Metrics     `mapstructure:"metrics"`
	Log                   LogConfig   `mapstructure:"log"`

	// Parsed durations, populated by ValidateAndApplyDefaults.
	TaskTimeoutD     time.Duration `mapstructure:"-"`
	MonitorIntervalD time.Duration `mapstructure:"-"`
}

// ─── API Server ───

// Server configures the distributor's HTTP/JSON API listener.
type Server struct {
	Listen string `mapstructure:"listen"`
}

// ─── Analyzer Pool ───

// PoolConfig configures an analyzer pool. When Enabled, the daemon runs the
// pool co-located with the distributor; the `pool` subcommand runs the same
// config against a remote distributor URL.
type PoolConfig struct {
	Enabled           bool            `mapstructure:"enabled"`
	Size              int             `mapstructure:"size"`
	Weights           []float64       `mapstructure:"weights"` // empty = default cycle
	DistributorURL    string          `mapstructure:"distributor_url"`
	PollInterval      string          `mapstructure:"poll_interval"`
	HeartbeatInterval string          `mapstructure:"heartbeat_interval"`
	Processor         ProcessorConfig `mapstructure:"processor"`
	Autoscale         Autoscale       `mapstructure:"autoscale"`

	PollIntervalD      time.Duration `mapstructure:"-"`
	HeartbeatIntervalD time.Duration `mapstructure:"-"`
}

// ProcessorConfig selects and configures the analyzer's processor plugin.
type ProcessorConfig struct {
	Name   string         `mapstructure:"name"`
	Config map[string]any `mapstructure:"config"`
}

// Autoscale configures the pool's closed-loop resize controller.
type Autoscale struct {
	Enabled            bool    `mapstructure:"enabled"`
	MinSize            int     `mapstructure:"min_size"`
	MaxSize            int     `mapstructure:"max_size"`
	ScaleUpThreshold   int     `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold int     `mapstructure:"scale_down_threshold"`
	ScaleCheckInterval string  `mapstructure:"scale_check_interval"`
	ScaleCooldown      string  `mapstructure:"scale_cooldown"`
	ScaleUpCount       int     `mapstructure:"scale_up_count"`
	ScaleDownCount     int     `mapstructure:"scale_down_count"`
	ScaleWeight        float64 `mapstructure:"scale_weight"`

	ScaleCheckIntervalD time.Duration `mapstructure:"-"`
	ScaleCooldownD      time.Duration `mapstructure:"-"`
}

// ─── Metrics ───

// Metrics configures the prometheus endpoint. This is operational telemetry,
// separate from the JSON /metrics endpoint of the public API.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Logging ───

// LogConfig configures the global slog logger.
type LogConfig struct {
	Level   string         `mapstructure:"level"`
	Format  string         `mapstructure:"format"` // json | text
	Outputs []OutputConfig `mapstructure:"outputs"`
}

// OutputConfig is one log output destination.
type OutputConfig struct {
	Type       string `mapstructure:"type"` // console | file
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads and validates configuration from the given file path.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides. The `distributor.` key prefix maps to
	// DISTRIBUTOR_ via the key replacer (e.g. "distributor.log.level" →
	// DISTRIBUTOR_LOG_LEVEL).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Distributor

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *GlobalConfig {
	cfg := &GlobalConfig{}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		// Defaults are statically valid; reaching here is a programming error.
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("distributor.server.listen", ":8080")
	v.SetDefault("distributor.task_timeout", "30s")
	v.SetDefault("distributor.monitor_interval", "5s")
	v.SetDefault("distributor.max_retries", 3)
	v.SetDefault("distributor.backpressure_threshold", 100)

	v.SetDefault("distributor.pool.enabled", false)
	v.SetDefault("distributor.pool.size", 4)
	v.SetDefault("distributor.pool.distributor_url", "http://localhost:8080")
	v.SetDefault("distributor.pool.poll_interval", "1s")
	v.SetDefault("distributor.pool.heartbeat_interval", "5s")
	v.SetDefault("distributor.pool.processor.name", "delay")
	v.SetDefault("distributor.pool.autoscale.enabled", false)
	v.SetDefault("distributor.pool.autoscale.scale_up_threshold", 50)
	v.SetDefault("distributor.pool.autoscale.scale_down_threshold", 10)
	v.SetDefault("distributor.pool.autoscale.scale_check_interval", "10s")
	v.SetDefault("distributor.pool.autoscale.scale_cooldown", "30s")
	v.SetDefault("distributor.pool.autoscale.scale_up_count", 1)
	v.SetDefault("distributor.pool.autoscale.scale_down_count", 1)
	v.SetDefault("distributor.pool.autoscale.scale_weight", 0.5)

	v.SetDefault("distributor.metrics.enabled", true)
	v.SetDefault("distributor.metrics.listen", ":9090")
	v.SetDefault("distributor.metrics.path", "/metrics")

	v.SetDefault("distributor.log.level", "info")
	v.SetDefault("distributor.log.format", "text")
}

// ValidateAndApplyDefaults fills zero-valued fields with defaults, parses
// duration strings, and rejects inconsistent settings.
func (c *GlobalConfig) ValidateAndApplyDefaults() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.TaskTimeout == "" {
		c.TaskTimeout = "30s"
	}
	if c.MonitorInterval == "" {
		c.MonitorInterval = "5s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BackpressureThreshold == 0 {
		c.BackpressureThreshold = 100
	}

	var err error
	if c.TaskTimeoutD, err = parseDuration("task_timeout", c.TaskTimeout); err != nil {
		return err
	}
	if c.MonitorIntervalD, err = parseDuration("monitor_interval", c.MonitorInterval); err != nil {
		return err
	}

	if err := c.Pool.validateAndApplyDefaults(); err != nil {
		return err
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return c.Log.validateAndApplyDefaults()
}

func (l *LogConfig) validateAndApplyDefaults() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}

	if l.Format == "" {
		l.Format = "text"
	}
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", l.Format)
	}

	for i, out := range l.Outputs {
		switch strings.ToLower(out.Type) {
		case "console", "stdout":
		case "file":
			if out.Path == "" {
				return fmt.Errorf("log.outputs[%d]: file output requires a path", i)
			}
		default:
			return fmt.Errorf("log.outputs[%d]: unsupported type %q", i, out.Type)
		}
	}

	return nil
}

func (p *PoolConfig) validateAndApplyDefaults() error {
	if p.Size == 0 {
		p.Size = 4
	}
	if p.Size < 0 {
		return fmt.Errorf("pool.size must be >= 0, got %d", p.Size)
	}
	for i, w := range p.Weights {
		if w <= 0 || w > 1 {
			return fmt.Errorf("pool.weights[%d] must be in (0, 1], got %v", i, w)
		}
	}
	if p.DistributorURL == "" {
		p.DistributorURL = "http://localhost:8080"
	}
	if p.PollInterval == "" {
		p.PollInterval = "1s"
	}
	if p.HeartbeatInterval == "" {
		p.HeartbeatInterval = "5s"
	}
	if p.Processor.Name == "" {
		p.Processor.Name = "delay"
	}

	var err error
	if p.PollIntervalD, err = parseDuration("pool.poll_interval", p.PollInterval); err != nil {
		return err
	}
	if p.HeartbeatIntervalD, err = parseDuration("pool.heartbeat_interval", p.HeartbeatInterval); err != nil {
		return err
	}

	return p.Autoscale.validateAndApplyDefaults(p.Size)
}

func (a *Autoscale) validateAndApplyDefaults(poolSize int) error {
	if a.MinSize == 0 {
		a.MinSize = poolSize
	}
	if a.MaxSize == 0 {
		a.MaxSize = poolSize * 4
	}
	if a.Enabled && a.MinSize > a.MaxSize {
		return fmt.Errorf("autoscale.min_size %d exceeds max_size %d", a.MinSize, a.MaxSize)
	}
	if a.ScaleUpThreshold == 0 {
		a.ScaleUpThreshold = 50
	}
	if a.ScaleDownThreshold == 0 {
		a.ScaleDownThreshold = 10
	}
	if a.Enabled && a.ScaleDownThreshold >= a.ScaleUpThreshold {
		return fmt.Errorf("autoscale.scale_down_threshold %d must be below scale_up_threshold %d",
			a.ScaleDownThreshold, a.ScaleUpThreshold)
	}
	if a.ScaleCheckInterval == "" {
		a.ScaleCheckInterval = "10s"
	}
	if a.ScaleCooldown == "" {
		a.ScaleCooldown = "30s"
	}
	if a.ScaleUpCount == 0 {
		a.ScaleUpCount = 1
	}
	if a.ScaleDownCount == 0 {
		a.ScaleDownCount = 1
	}
	if a.ScaleWeight == 0 {
		a.ScaleWeight = 0.5
	}
	if a.ScaleWeight <= 0 || a.ScaleWeight > 1 {
		return fmt.Errorf("autoscale.scale_weight must be in (0, 1], got %v", a.ScaleWeight)
	}

	var err error
	if a.ScaleCheckIntervalD, err = parseDuration("autoscale.scale_check_interval", a.ScaleCheckInterval); err != nil {
		return err
	}
	if a.ScaleCooldownD, err = parseDuration("autoscale.scale_cooldown", a.ScaleCooldown); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}
