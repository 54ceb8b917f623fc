// log.go configures structured logging for the compiler pipeline.

package util

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the package-wide logger. The CLI configures its level in
// NewLogger; stages log through this logger rather than fmt.Println.
var Log zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)

// NewLogger rebuilds Log at the requested verbosity. verbose enables debug
// level, which includes per-stage counts (tokens, functions, instructions).
func NewLogger(verbose bool) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if verbose {
		lvl = zerolog.DebugLevel
	}
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(lvl)
	return Log
}
