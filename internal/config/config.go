package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scheduler    SchedulerConfig    `yaml:"scheduler" mapstructure:"scheduler"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Robots       RobotsConfig       `yaml:"robots" mapstructure:"robots"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Fingerprints FingerprintsConfig `yaml:"fingerprints" mapstructure:"fingerprints"`
	Census       CensusConfig       `yaml:"census" mapstructure:"census"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint" mapstructure:"checkpoint"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Input        InputConfig        `yaml:"input" mapstructure:"input"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// SchedulerConfig configures the worker pool and politeness delays.
type SchedulerConfig struct {
	Workers    int `yaml:"workers" mapstructure:"workers"`
	MinDelayMs int `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// MinDelay returns the lower politeness bound.
func (s SchedulerConfig) MinDelay() time.Duration {
	return time.Duration(s.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper politeness bound.
func (s SchedulerConfig) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelayMs) * time.Millisecond
}

// FetchConfig configures the HTTP page loader.
type FetchConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// RetryConfig configures the page-load retry controller.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect bool `yaml:"respect" mapstructure:"respect"`
}

// ExtractConfig configures field resolution and location expansion.
type ExtractConfig struct {
	MinConfidence string `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxRooftops   int    `yaml:"max_rooftops" mapstructure:"max_rooftops"`
}

// FingerprintsConfig points at an optional provider fingerprint file.
type FingerprintsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CensusConfig configures the county lookup client.
type CensusConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CheckpointConfig configures the checkpoint store.
type CheckpointConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"` // file or sqlite
	Dir        string `yaml:"dir" mapstructure:"dir"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Keep       int    `yaml:"keep" mapstructure:"keep"`
}

// OutputConfig configures the rendered report.
type OutputConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	Header   bool   `yaml:"header" mapstructure:"header"`
}

// Location resolves the configured timezone, falling back to UTC.
func (o OutputConfig) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		zap.L().Warn("config: unknown timezone, using UTC", zap.String("timezone", o.Timezone))
		return time.UTC
	}
	return loc
}

// InputConfig lists URLs used when none are given on the command line.
type InputConfig struct {
	URLs      []string `yaml:"urls" mapstructure:"urls"`
	URLFile   string   `yaml:"url_file" mapstructure:"url_file"`
	CSVFile   string   `yaml:"csv_file" mapstructure:"csv_file"`
	CSVColumn string   `yaml:"csv_column" mapstructure:"csv_column"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Scheduler.Workers < 1 {
		return eris.Errorf("config: scheduler.workers must be >= 1, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.MinDelayMs < 0 || c.Scheduler.MaxDelayMs < c.Scheduler.MinDelayMs {
		return eris.Errorf("config: invalid politeness window [%d, %d]ms", c.Scheduler.MinDelayMs, c.Scheduler.MaxDelayMs)
	}
	if c.Extract.MaxRooftops < 1 {
		return eris.Errorf("config: extract.max_rooftops must be >= 1, got %d", c.Extract.MaxRooftops)
	}
	switch c.Checkpoint.Driver {
	case "file", "sqlite":
	default:
		return eris.Errorf("config: unknown checkpoint.driver %q", c.Checkpoint.Driver)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scheduler.workers", 5)
	v.SetDefault("scheduler.min_delay_ms", 1000)
	v.SetDefault("scheduler.max_delay_ms", 3000)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; dealer-scraper/1.0)")
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("robots.respect", true)
	v.SetDefault("extract.min_confidence", "medium")
	v.SetDefault("extract.max_rooftops", 10)
	v.SetDefault("fingerprints.path", "")
	v.SetDefault("census.enabled", true)
	v.SetDefault("census.base_url", "https://geocoding.geo.census.gov/geocoder")
	v.SetDefault("census.rate_limit", 5.0)
	v.SetDefault("census.timeout_secs", 15)
	v.SetDefault("census.failure_threshold", 5)
	v.SetDefault("census.reset_timeout_secs", 60)
	v.SetDefault("checkpoint.driver", "file")
	v.SetDefault("checkpoint.dir", ".checkpoints")
	v.SetDefault("checkpoint.sqlite_path", ".checkpoints/checkpoints.db")
	v.SetDefault("checkpoint.keep", 10)
	v.SetDefault("output.path", "dealers.md")
	v.SetDefault("output.timezone", "America/Chicago")
	v.SetDefault("output.header", true)
	v.SetDefault("input.csv_column", "url")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
