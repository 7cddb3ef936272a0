package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger. Packages that take a zerolog.Logger tag
// their own component; Module is for callers that do not.
type Logger struct {
	zerolog.Logger
}

// New builds a logger writing to stdout. Unknown levels fall back to info.
func New(level string, pretty bool) *Logger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(w io.Writer, level string, pretty bool) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &Logger{Logger: l}
}

// Module returns a child logger tagged with the component name.
func (l *Logger) Module(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
