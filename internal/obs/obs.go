// Package obs provides the structured-logging facade shared by every
// component of parlib.
//
// Design decision: a package-level global logger is appropriate here, the
// same way it is for an event loop library: logging is an infrastructure
// cross-cutting concern, every scheduler node and vcore shares the same
// logging semantics, and per-node logger configuration would bloat the
// constructor surface of every package for no real benefit.
package obs

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	current = logiface.New[*izerolog.Event](izerolog.WithZerolog(defaultZerolog()))
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

func defaultZerolog() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// L returns the current package-level logger.
func L() *logiface.Logger[*izerolog.Event] {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetZerolog replaces the backing zerolog.Logger used by L.
func SetZerolog(z zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = logiface.New[*izerolog.Event](izerolog.WithZerolog(z))
}

// SetEnabled sets the flag reported by Enabled. L does not consult the flag,
// so it does not by itself silence any log output.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled reports whether logging is currently active.
func Enabled() bool {
	return enabled.Load()
}
