// Package rlog centralizes the leveled logging convention used throughout
// the runtime (INFO/WARN/ERROR/CRITICAL/DEBUG prefixes), backed by zap
// instead of bare fmt.Printf so the prefix format stays consistent across
// call sites instead of being retyped at each one.
package rlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// SetLogger replaces the backing zap logger, e.g. with zap.NewDevelopment()
// in tests or a CLI's -v flag.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Info(format string, args ...any) {
	current().Sugar().Infof(format, args...)
}

func Warn(format string, args ...any) {
	current().Sugar().Warnf(format, args...)
}

func Error(format string, args ...any) {
	current().Sugar().Errorf(format, args...)
}

func Critical(format string, args ...any) {
	current().Sugar().Errorf("CRITICAL: "+format, args...)
}

func Debug(format string, args ...any) {
	current().Sugar().Debugf(format, args...)
}
