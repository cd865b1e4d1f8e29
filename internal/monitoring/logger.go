// Package monitoring holds the process-wide logger and Prometheus
// metrics. Both are constructed once in main and handed to components;
// the package-level logger exists so tests and tools can mute or
// redirect output without threading a logger everywhere.
package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. It defaults to a console writer
// on stderr and may be replaced by SetLogger.
var Logger = NewLogger("info", true)

// SetLogger replaces the package logger. Passing a zerolog.Nop()
// mutes it.
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// NewLogger builds a logger at the given level. console selects
// human-readable output; otherwise JSON lines.
func NewLogger(level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
