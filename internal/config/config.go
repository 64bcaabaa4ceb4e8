package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anansi-ai/anansi/internal/answer"
	"github.com/anansi-ai/anansi/internal/embed"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/ingest"
	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

// Config is the root configuration for an Anansi instance. Every section
// has working defaults, so an empty file (or no file at all) yields a
// fully in-memory deployment with mock providers.
type Config struct {
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
	Tracing TracingConfig  `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Graph   graph.Config   `mapstructure:"graph" yaml:"graph" json:"graph"`
	Vector  vector.Config  `mapstructure:"vector" yaml:"vector" json:"vector"`
	Embed   embed.Config   `mapstructure:"embed" yaml:"embed" json:"embed"`
	Extract extract.Config `mapstructure:"extract" yaml:"extract" json:"extract"`
	Ingest  ingest.Config  `mapstructure:"ingest" yaml:"ingest" json:"ingest"`
	Search  search.Config  `mapstructure:"search" yaml:"search" json:"search"`
	Answer  answer.Config  `mapstructure:"answer" yaml:"answer" json:"answer"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// TracingConfig controls span emission. Spans go through the process-wide
// OpenTelemetry tracer provider; exporter setup belongs to the embedding
// application. Enabled false swaps in a no-op tracer regardless of any
// provider installed globally.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
}

// DefaultConfig returns a config with every section defaulted.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "anansi"
	}
	c.Graph.ApplyDefaults()
	c.Vector.ApplyDefaults()
	c.Embed.ApplyDefaults()
	c.Extract.ApplyDefaults()
	c.Ingest.ApplyDefaults()
	c.Search.ApplyDefaults()
	c.Answer.ApplyDefaults()
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	for name, v := range map[string]interface{ Validate() error }{
		"graph":   &c.Graph,
		"vector":  &c.Vector,
		"embed":   &c.Embed,
		"extract": &c.Extract,
		"ingest":  &c.Ingest,
		"search":  &c.Search,
		"answer":  &c.Answer,
	} {
		if err := v.Validate(); err != nil {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "section "+name, err)
		}
	}
	return nil
}

// Logger builds a slog.Logger from the logging section.
func (l LoggingConfig) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(l.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
