// Package logging builds the zap loggers used by pwsvc.
// Loggers are split by category (one named child per subsystem). Development
// runs log colored text to stderr; production runs write JSON lines to
// <logs_dir>/<app_name>.log.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config, flags
	CategoryGuardrail Category = "guardrail" // Time window decisions
	CategoryExtract   Category = "extract"   // Section extraction
	CategoryOneDrive  Category = "onedrive"  // Auth + download
	CategorySummarize Category = "summarize" // LLM calls
	CategoryToggl     Category = "toggl"     // Time tracking API + aggregation
	CategoryStore     Category = "store"     // Artifact store
	CategoryAudit     Category = "audit"     // Audit events
)

// Environments recognised by New.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	Environment string
	AppName     string
	Dir         string
	Level       string
	Verbose     bool
}

// ErrAppNameRequired is returned for production logging without an app name.
var ErrAppNameRequired = errors.New("app name is required for file logging")

// New builds the root logger for the process.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level, opts.Environment)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	switch opts.Environment {
	case EnvProduction:
		if opts.AppName == "" {
			return nil, ErrAppNameRequired
		}
		if opts.Dir == "" {
			return nil, fmt.Errorf("logs directory is required in production")
		}
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{filepath.Join(opts.Dir, opts.AppName+".log")}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if opts.AppName != "" {
		logger = logger.With(zap.String("app", opts.AppName))
	}
	return logger, nil
}

func parseLevel(level, env string) (zapcore.Level, error) {
	if level == "" {
		if env == EnvProduction {
			return zapcore.InfoLevel, nil
		}
		return zapcore.DebugLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// For returns the category logger derived from l. A nil l yields a no-op logger.
func For(l *zap.Logger, category Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(string(category))
}

// Timer helps measure operation duration
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(l *zap.Logger, operation string) *Timer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Timer{logger: l, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Info("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn("operation slow",
			zap.String("op", t.op),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
