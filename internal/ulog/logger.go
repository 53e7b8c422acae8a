// Package ulog provides the structured logger used across every Cuprate
// component. It wraps zerolog the same way the node's services always have:
// a thin interface so call sites never import zerolog directly, and a
// pretty console writer for local runs.
package ulog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan
	colorWhite

	colorBold = 1
)

// Logger is the logging surface every component constructor takes. It is
// deliberately narrow: components format their own messages and never reach
// for a package-level global.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	With(fields ...interface{}) Logger
}

// Wrapper adapts a zerolog.Logger to the Logger interface.
type Wrapper struct {
	zerolog.Logger
	service string
}

// New constructs a Logger for the named service (e.g. "p2p", "verifier",
// "rpc"). logLevel is one of DEBUG/INFO/WARN/ERROR/FATAL, defaulting to INFO.
func New(service string, logLevel string, pretty bool) *Wrapper {
	if service == "" {
		service = "cuprated"
	}

	var w *Wrapper
	if pretty {
		w = prettyLogger(service)
	} else {
		w = &Wrapper{
			zerolog.New(os.Stdout).With().
				Str("service", service).
				CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
				Timestamp().
				Logger(),
			service,
		}
	}

	setLevel(logLevel, w)

	return w
}

func setLevel(logLevel string, w *Wrapper) {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		w.Logger = w.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		w.Logger = w.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		w.Logger = w.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		w.Logger = w.Logger.Level(zerolog.FatalLevel)
	default:
		w.Logger = w.Logger.Level(zerolog.InfoLevel)
	}
}

func prettyLogger(service string) *Wrapper {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, _ := time.Parse(time.RFC3339, fmt.Sprintf("%s", i))
		return parsed.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		l := strings.ToUpper(fmt.Sprintf("%-6s", i))
		switch i {
		case "debug":
			l = colorize(l, colorBlue)
		case "info":
			l = colorize(l, colorGreen)
		case "warn":
			l = colorize(l, colorYellow)
		case "error", "fatal", "panic":
			l = colorize(l, colorRed)
		default:
			l = colorize(l, colorWhite)
		}
		return fmt.Sprintf("| %s|", l)
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-10s| %s", service, i)
	}

	output.FormatCaller = func(i interface{}) string {
		c, ok := i.(string)
		if !ok || c == "" {
			return ""
		}
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}
		return colorize(c, colorBold)
	}

	return &Wrapper{
		zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Timestamp().
			Logger(),
		service,
	}
}

func (w *Wrapper) Debugf(format string, args ...interface{}) { w.Logger.Debug().Msgf(format, args...) }
func (w *Wrapper) Infof(format string, args ...interface{})  { w.Logger.Info().Msgf(format, args...) }
func (w *Wrapper) Warnf(format string, args ...interface{})  { w.Logger.Warn().Msgf(format, args...) }
func (w *Wrapper) Errorf(format string, args ...interface{}) { w.Logger.Error().Msgf(format, args...) }
func (w *Wrapper) Fatalf(format string, args ...interface{}) { w.Logger.Fatal().Msgf(format, args...) }

// With returns a child logger carrying the given alternating key/value
// fields, matching zerolog's With().Interface chain idiom.
func (w *Wrapper) With(fields ...interface{}) Logger {
	ctx := w.Logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &Wrapper{ctx.Logger(), w.service}
}

func colorize(s string, c int) string {
	if os.Getenv("NO_COLOR") != "" || c == 0 {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}
