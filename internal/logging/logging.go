// Package logging gates debug output on the standard logger.
//
// Everything logs through the standard log package to stderr; stdout is
// reserved for the operator console. Debugf lines are dropped unless debug
// output was enabled, usually from log_level: debug in the machine file or
// BALANCE_LOG_LEVEL=debug.
package logging

import (
	"fmt"
	"log"
	"sync/atomic"
)

var debug atomic.Bool

// SetLevel enables debug output for level "debug" and disables it for any
// other level.
func SetLevel(level string) {
	debug.Store(level == "debug")
}

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs like log.Printf when debug output is enabled. The caller's
// file and line are reported, not this function's.
func Debugf(format string, args ...any) {
	if !debug.Load() {
		return
	}
	log.Output(2, fmt.Sprintf("DEBUG "+format, args...))
}
