// Package logging builds the zerolog loggers used across voicepaste.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// FieldComponent tags every line with the subsystem that wrote it.
const FieldComponent = "component"

// Options configures the root logger.
type Options struct {
	Level   string
	Format  string
	NoColor bool
	Out     io.Writer
}

// New creates the root logger. Unknown levels fall back to info.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var zl zerolog.Logger
	switch strings.ToLower(opts.Format) {
	case "json":
		zl = zerolog.New(out)
	default:
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    opts.NoColor,
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-5s", i))
			},
		})
	}
	return zl.Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with name. When debug is set the
// child logs at debug level regardless of the root level.
func Component(root zerolog.Logger, name string, debug bool) zerolog.Logger {
	l := root.With().Str(FieldComponent, name).Logger()
	if debug {
		l = l.Level(zerolog.DebugLevel)
	}
	return l
}

// Nop returns a disabled logger, handy as a zero value in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
