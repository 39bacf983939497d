// Package config loads the immutable process configuration: defaults, then an optional YAML file,
// then environment overrides. The result is passed by value into constructors; nothing below
// cmd/ reads the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyang/job-dispatch/internal/observability"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Server       ServerConfig                `yaml:"server"`
	Store        string                      `yaml:"store"` // postgres | memory
	Database     DatabaseConfig              `yaml:"database"`
	Log          LogConfig                   `yaml:"log"`
	Agent        AgentConfig                 `yaml:"agent"`
	Distribution DistributionConfig          `yaml:"distribution"`
	Intake       IntakeConfig                `yaml:"intake"`
	Sweep        SweepConfig                 `yaml:"sweep"`
	Tracing      observability.TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// AgentConfig governs every call to an agent endpoint.
type AgentConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	HealthTimeout   time.Duration `yaml:"health_timeout"`
	CancelTimeout   time.Duration `yaml:"cancel_timeout"`
	HealthCacheTTL  time.Duration `yaml:"health_cache_ttl"`
}

type DistributionConfig struct {
	MaxAgentsPerJob int `yaml:"max_agents_per_job"`
	// Timeout is the deadline of a distribution whose job has none.
	Timeout  time.Duration `yaml:"timeout"`
	Quorum   int           `yaml:"quorum"`
	Strategy string        `yaml:"strategy"` // first_completed | best_scored
}

type IntakeConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", ShutdownTimeout: 10 * time.Second},
		Store:  StorePostgres,
		Database: DatabaseConfig{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Agent: AgentConfig{
			MaxRetries:      2,
			RetryBaseDelay:  time.Second,
			RetryMultiplier: 2,
			RequestTimeout:  30 * time.Second,
			HealthTimeout:   5 * time.Second,
			CancelTimeout:   5 * time.Second,
			HealthCacheTTL:  30 * time.Second,
		},
		Distribution: DistributionConfig{
			MaxAgentsPerJob: 3,
			Timeout:         10 * time.Minute,
			Quorum:          1,
			Strategy:        "first_completed",
		},
		Intake:  IntakeConfig{Interval: 5 * time.Second, BatchSize: 20},
		Sweep:   SweepConfig{Interval: 30 * time.Second},
		Tracing: observability.TracingConfig{Exporter: "none", SampleRatio: 1},
	}
}

// Load reads path (skipped when empty) over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("DISPATCH_STORE", &c.Store)
	str("DISPATCH_LOG_LEVEL", &c.Log.Level)
	str("DISPATCH_LOG_FORMAT", &c.Log.Format)
	num("DISPATCH_MAX_AGENTS_PER_JOB", &c.Distribution.MaxAgentsPerJob)
	num("DISPATCH_QUORUM", &c.Distribution.Quorum)
	str("DISPATCH_STRATEGY", &c.Distribution.Strategy)
	dur("DISPATCH_DISTRIBUTION_TIMEOUT", &c.Distribution.Timeout)
	num("DISPATCH_MAX_RETRIES", &c.Agent.MaxRetries)
	dur("DISPATCH_REQUEST_TIMEOUT", &c.Agent.RequestTimeout)
	dur("DISPATCH_HEALTH_CACHE_TTL", &c.Agent.HealthCacheTTL)
	dur("DISPATCH_INTAKE_INTERVAL", &c.Intake.Interval)
	num("DISPATCH_INTAKE_BATCH_SIZE", &c.Intake.BatchSize)
	dur("DISPATCH_SWEEP_INTERVAL", &c.Sweep.Interval)
	str("DISPATCH_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("DISPATCH_TRACING_ENDPOINT", &c.Tracing.Endpoint)

	return errors.Join(errs...)
}

// parseDuration accepts Go duration strings and, for older deployments, bare integer seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database url is required for the postgres store (DATABASE_URL)"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch strings.ToLower(c.Distribution.Strategy) {
	case "", "first_completed", "best_scored":
	default:
		errs = append(errs, fmt.Errorf("unknown selection strategy %q", c.Distribution.Strategy))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Distribution.MaxAgentsPerJob < 1 {
		errs = append(errs, errors.New("distribution.max_agents_per_job must be at least 1"))
	}
	if c.Distribution.Quorum < 1 || c.Distribution.Quorum > c.Distribution.MaxAgentsPerJob {
		errs = append(errs, fmt.Errorf("distribution.quorum must be between 1 and %d", c.Distribution.MaxAgentsPerJob))
	}
	if c.Distribution.Timeout <= 0 {
		errs = append(errs, errors.New("distribution.timeout must be positive"))
	}
	if c.Agent.MaxRetries < 0 {
		errs = append(errs, errors.New("agent.max_retries must not be negative"))
	}
	if c.Agent.RetryMultiplier < 1 {
		errs = append(errs, errors.New("agent.retry_multiplier must be at least 1"))
	}
	if c.Agent.RequestTimeout <= 0 {
		errs = append(errs, errors.New("agent.request_timeout must be positive"))
	}
	if c.Intake.Interval <= 0 || c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("intake and sweep intervals must be positive"))
	}
	if c.Intake.BatchSize < 1 {
		errs = append(errs, errors.New("intake.batch_size must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return l, nil
}

// Logger builds the process logger on stdout.
func (c Config) Logger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
