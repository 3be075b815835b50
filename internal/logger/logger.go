// Package logger exposes a process-wide zap.SugaredLogger behind
// package-level functions.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sugar *zap.SugaredLogger

func init() {
	// Packages may log before Init runs (tests in particular).
	sugar = zap.NewNop().Sugar()
}

// Init builds the process logger. level is a zap level name ("debug",
// "info", ...); format is "console" or "json".
func Init(level, format string) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = logLevel
	cfg.OutputPaths = []string{"stderr"}

	built, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	sugar = built.Sugar()
}

func Infof(template string, args ...any)  { sugar.Infof(template, args...) }
func Warnf(template string, args ...any)  { sugar.Warnf(template, args...) }
func Errorf(template string, args ...any) { sugar.Errorf(template, args...) }
func Fatalf(template string, args ...any) { sugar.Fatalf(template, args...) }

// Infow logs key-value context with an info message.
func Infow(msg string, keysAndValues ...any) { sugar.Infow(msg, keysAndValues...) }

// Sync flushes buffered log entries.
func Sync() { _ = sugar.Sync() }
