// Package logger builds the zerolog logger used across rhino.
package logger

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error, disabled (any case).
	Level string
	// Writer receives the log lines.
	Writer io.Writer
	// Console selects human-readable output instead of JSON lines.
	Console bool
	// Caller adds file:line to every entry.
	Caller bool
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "DISABLED", "OFF":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %q", name)
	}
}

// New creates a logger. The level applies to this logger only so several
// runs in one process can log at different levels.
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	w := opts.Writer
	if opts.Console {
		w = zerolog.ConsoleWriter{
			Out:        opts.Writer,
			TimeFormat: "15:04:05.000",
			FormatLevel: func(i any) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
		}
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if opts.Caller {
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount)
	}
	return ctx.Logger(), nil
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		return file + ":" + strconv.Itoa(line)
	}
}
