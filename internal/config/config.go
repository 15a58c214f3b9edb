// Package config loads claimgraph settings from defaults, an optional YAML
// file and CLAIMGRAPH_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read by Load. Nested keys use a
// double underscore: CLAIMGRAPH_SERVER__PORT sets server.port.
const EnvPrefix = "CLAIMGRAPH_"

// Config is the full application configuration.
type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Log        LogConfig        `koanf:"log"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Inference  InferenceConfig  `koanf:"inference"`
	Pricing    PricingConfig    `koanf:"pricing"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Addr is the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// CheckpointConfig enables per-stage snapshots for resumable runs.
type CheckpointConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type PipelineConfig struct {
	MaxRetries   int           `koanf:"max_retries"`
	StageTimeout time.Duration `koanf:"stage_timeout"`
}

type InferenceConfig struct {
	Backend string         `koanf:"backend"`
	Options map[string]any `koanf:"options"`
	Retry   RetryConfig    `koanf:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
}

type PricingConfig struct {
	Base      float64 `koanf:"base"`
	Increment float64 `koanf:"increment"`
	Currency  string  `koanf:"currency"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing"`
	Metrics bool `koanf:"metrics"`
}

var defaults = map[string]any{
	"app.name":                        "claimgraph",
	"app.version":                     "0.1.0",
	"server.port":                     8000,
	"server.request_timeout":          "60s",
	"storage.type":                    "sqlite",
	"storage.sqlite.path":             "claimgraph.db",
	"checkpoint.enabled":              false,
	"checkpoint.path":                 "checkpoints.db",
	"log.level":                       "info",
	"log.format":                      "text",
	"pipeline.max_retries":            3,
	"pipeline.stage_timeout":          "0s",
	"inference.backend":               "rules",
	"inference.retry.max_attempts":    3,
	"inference.retry.initial_backoff": "500ms",
	"pricing.base":                    100.0,
	"pricing.increment":               50.0,
	"pricing.currency":                "USD",
	"telemetry.tracing":               false,
	"telemetry.metrics":               false,
}

// Load builds the configuration. path names an optional YAML file; an
// empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CLAIMGRAPH_PIPELINE__MAX_RETRIES to pipeline.max_retries.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout: must not be negative"))
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path: required for sqlite storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type: unknown %q", c.Storage.Type))
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint.path: required when checkpointing is enabled"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: unknown %q", c.Log.Format))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, errors.New("pipeline.max_retries: must not be negative"))
	}
	if c.Pipeline.StageTimeout < 0 {
		errs = append(errs, errors.New("pipeline.stage_timeout: must not be negative"))
	}
	if c.Inference.Backend == "" {
		errs = append(errs, errors.New("inference.backend: required"))
	}
	if c.Inference.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("inference.retry.max_attempts: must be at least 1"))
	}
	if c.Pricing.Base < 0 || c.Pricing.Increment < 0 {
		errs = append(errs, errors.New("pricing: base and increment must not be negative"))
	}
	if len(c.Pricing.Currency) != 3 {
		errs = append(errs, fmt.Errorf("pricing.currency: %q is not an ISO 4217 code", c.Pricing.Currency))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown %q", s)
	}
	return l, nil
}

// NewLogger builds the slog logger described by Log.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("app", c.App.Name))
}
