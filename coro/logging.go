// Package-level configuration for structured logging.
//
// Logging is an infrastructure cross-cutting concern shared by every
// coroutine in the process, so it is configured once at package level rather
// than threaded through each constructor. The reactor and threadpool
// packages accept per-instance loggers and fall back to this one.

package coro

import (
	"log"
	"sync"

	"github.com/joeycumines/logiface"
)

var globalLogger struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger sets the structured logger used for runtime diagnostics
// (orphan failures and related boundary conditions). A nil logger is valid
// and restores the default behavior: diagnostics fall back to the standard
// library log package so they are never silently dropped.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// Logger returns the configured structured logger, which may be nil.
func Logger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// reportOrphan surfaces a failed coroutine that nothing is watching. The
// failure is not an error anyone can act on, so it must be loud rather than
// silently lost.
func reportOrphan(c *Coroutine) {
	if logger := Logger(); logger != nil {
		logger.Warning().
			Int("coroutine", int(c.id)).
			Str("name", c.name).
			Err(c.err).
			Log("orphan coroutine failed")
		return
	}
	log.Printf("WARNING: coro: orphan coroutine failed: %v", c)
}
