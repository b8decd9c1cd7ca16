package config

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr  = "127.0.0.1:50051"
	DefaultModel       = "base"
	DefaultLanguage    = "auto"
	DefaultLogLevel    = "info"
	DefaultDataDir     = "data"
	DefaultGrammarRule = "root"
	DefaultWorkers     = 1

	// MaxWorkers bounds the number of decode States held at once.
	MaxWorkers = 64
)

// Config captures bootstrap configuration extracted from a YAML file, the
// injected JSON payload (`NUPI_ADAPTER_CONFIG`) and environment variables.
type Config struct {
	ListenAddr     string
	ModelVariant   string
	Language       string
	LogLevel       string
	DataDir        string
	ModelPath      string
	UseStubEngine  bool
	UseGPU         *bool
	FlashAttention *bool
	Threads        *int
	BeamSize       *int
	Translate      *bool

	// NoState loads the model without decode state; streams then share the
	// context's own storage one decode at a time.
	NoState        bool
	OpenVINODevice string

	GrammarPath    string
	GrammarRule    string
	GrammarPenalty *float32

	// Workers is the number of States used for concurrent batch decoding.
	Workers     int
	MetricsAddr string
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.GrammarRule == "" {
		c.GrammarRule = DefaultGrammarRule
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.Threads != nil && *c.Threads == 0 {
		c.Threads = nil
	}
	if c.BeamSize != nil && *c.BeamSize < 1 {
		return fmt.Errorf("config: beam_size must be >= 1, got %d", *c.BeamSize)
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("config: workers must be in [1, %d], got %d", MaxWorkers, c.Workers)
	}
	if c.GrammarPenalty != nil && *c.GrammarPenalty < 0 {
		return fmt.Errorf("config: grammar_penalty must be >= 0, got %g", *c.GrammarPenalty)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; ok {
		return level
	}
	return slog.LevelInfo
}
