// Package ulogger is the node's logging facade: a zerolog-backed Logger
// interface, grounded on the teacher's util/logger.go ZLoggerWrapper, plus a
// gocore-driven level/format switch and a no-op implementation for tests.
package ulogger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
)

// Logger is the interface every component in the tree logs through. It is
// deliberately small: printf-style leveled logging plus structured field
// attachment via With, so a call site never needs to import zerolog itself.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	LogLevel() int
	With(fields ...Field) Logger
	New(service string) Logger
}

// Field is a structured key/value pair attached to a child logger.
type Field struct {
	Key   string
	Value interface{}
}

func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

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

// ZLogger wraps a zerolog.Logger to satisfy Logger.
type ZLogger struct {
	zerolog.Logger
	service string
}

// New constructs the service's root logger. Output format and level are
// driven by gocore settings ("PRETTY_LOGS" and the supplied logLevel),
// matching the teacher's configuration surface.
func New(service string, logLevel ...string) *ZLogger {
	if service == "" {
		service = "fullnode"
	}

	var z *ZLogger
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		z = prettyLogger(service)
	} else {
		z = &ZLogger{
			Logger: zerolog.New(os.Stdout).With().
				CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
				Timestamp().
				Logger(),
			service: service,
		}
	}

	if len(logLevel) > 0 {
		setLevel(logLevel[0], z)
	}

	return z
}

func setLevel(logLevel string, z *ZLogger) {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		z.Logger = z.Logger.Level(zerolog.DebugLevel)
	case "INFO":
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	case "WARN":
		z.Logger = z.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.Logger = z.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		z.Logger = z.Logger.Level(zerolog.FatalLevel)
	default:
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	}
}

func prettyLogger(service string) *ZLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, _ := time.Parse(time.RFC3339, i.(string))
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
		return fmt.Sprintf("| %-6s| %s", service, i)
	}

	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	output.FormatFieldValue = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("%s", i))
	}

	output.FormatCaller = func(i interface{}) string {
		c, _ := i.(string)
		if len(c) == 0 {
			return c
		}

		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}

		split := strings.Split(c, "/")
		idx := len(split) - 1
		c = split[idx]
		idx--
		for idx >= 0 && len(c)+len(split[idx])+1 <= 32 {
			c = split[idx] + "/" + c
			idx--
		}

		return colorize(fmt.Sprintf("%-32s", c), colorBold)
	}

	return &ZLogger{
		Logger: zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Timestamp().
			Logger(),
		service: service,
	}
}

func (z *ZLogger) LogLevel() int {
	switch z.Logger.GetLevel() {
	case zerolog.DebugLevel:
		return int(gocore.DEBUG)
	case zerolog.InfoLevel:
		return int(gocore.INFO)
	case zerolog.WarnLevel:
		return int(gocore.WARN)
	case zerolog.ErrorLevel:
		return int(gocore.ERROR)
	case zerolog.FatalLevel:
		return int(gocore.FATAL)
	default:
		return int(gocore.INFO)
	}
}

func (z *ZLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *ZLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *ZLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *ZLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *ZLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }

// With returns a child logger carrying the given structured fields.
func (z *ZLogger) With(fields ...Field) Logger {
	ctx := z.Logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZLogger{Logger: ctx.Logger(), service: z.service}
}

// New returns a child logger tagged with a different service name, sharing
// the parent's level and output.
func (z *ZLogger) New(service string) Logger {
	return &ZLogger{Logger: z.Logger.With().Logger(), service: service}
}

// Output duplicates the logger and redirects its output to w (used by tests
// to capture log lines).
func (z *ZLogger) Output(w io.Writer) *ZLogger {
	return &ZLogger{Logger: z.Logger.Output(w), service: z.service}
}

func colorize(s interface{}, c int) string {
	if os.Getenv("NO_COLOR") != "" || c == 0 {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
