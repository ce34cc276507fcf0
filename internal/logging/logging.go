// Package logging provides the process-wide structured logger.
//
// It mirrors the global-sugared-logger pattern used across the retrieval
// pack (e.g. teranos-QNTX/logger): a package-level *zap.SugaredLogger that
// starts out as a safe no-op so early-boot code can log before Init runs,
// and is swapped for a real logger once the CLI has parsed flags.
package logging

import (
	"go.uber.org/zap"
)

// L is the process-wide logger. Safe to use before Init (logs nowhere).
var L = zap.NewNop().Sugar()

// Init builds the process logger. debug selects a human-readable console
// encoder at debug level; otherwise a JSON production encoder at info level
// is used, matching the teacher pack's dev-vs-prod split.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	L = logger.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = L.Sync()
}

// Named returns a child logger scoped to the given component name.
func Named(name string) *zap.SugaredLogger {
	return L.Named(name)
}
