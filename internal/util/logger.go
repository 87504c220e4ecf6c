package util

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

// InitLogger builds the process logger: JSON in production, colored console
// otherwise. LOG_LEVEL overrides the level implied by env.
func InitLogger(env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return err
		}
		cfg.Level = level
	}

	l, err := cfg.Build(zap.Fields(
		zap.String("service", "holidaysync"),
		zap.String("env", env),
	))
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// GetLogger returns the process logger, falling back to a development logger
// before InitLogger ran.
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l, _ := zap.NewDevelopment()
	if current.CompareAndSwap(nil, l) {
		return l
	}
	return current.Load()
}

// SetLogger replaces the process logger. Tests use it to observe output.
func SetLogger(l *zap.Logger) {
	current.Store(l)
	zap.ReplaceGlobals(l)
}

// SyncLogger flushes buffered entries
func SyncLogger() {
	if l := current.Load(); l != nil {
		_ = l.Sync()
	}
}
