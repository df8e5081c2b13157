// Package logging builds the zap loggers used across mathmine.
// Each subsystem logs through a named child logger so output can be
// filtered by category.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryArxiv    Category = "arxiv"    // arXiv API queries and source downloads
	CategoryLatex    Category = "latex"    // LaTeX preprocessing and environment extraction
	CategoryLLM      Category = "llm"      // LLM API calls
	CategoryExtract  Category = "extract"  // Theorem pipeline
	CategoryStore    Category = "store"    // SQLite dataset store
	CategoryManifest Category = "manifest" // Requirements manifest parsing and linting
	CategoryServer   Category = "server"   // HTTP API
	CategoryExport   Category = "export"   // Parquet/JSONL export and uploads
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryArxiv,
	CategoryLatex,
	CategoryLLM,
	CategoryExtract,
	CategoryStore,
	CategoryManifest,
	CategoryServer,
	CategoryExport,
}

// Options controls logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // console, json
	Verbose bool   // forces debug level
}

// New builds the root logger. Console output is the default; json selects
// zap's production encoder.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %s", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
	return level, nil
}

// For returns the child logger for a category. A nil parent yields a no-op
// logger so library code never has to nil-check.
func For(parent *zap.Logger, cat Category) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(string(cat))
}
