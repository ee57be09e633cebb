package gpufft

import (
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used by plans compiled without WithLogger.
// Passing nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func defaultLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}

	return slog.Default()
}
