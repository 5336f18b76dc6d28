// Package logging configures the global zerolog logger from command line
// settings.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	Level      string
	Format     string
	File       string
	WithCaller bool
}

// AddFlags registers --log-level, --log-format, --log-file and --with-caller.
func AddFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text or json)")
	f.String("log-file", "", "Write logs to this file instead of stderr (rotated at 10MB)")
	f.Bool("with-caller", false, "Log caller information")
}

// ParseLevel converts a level name into a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// InitLogger replaces the global logger. The returned closer releases the log
// file, if one was opened.
func InitLogger(s Settings) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		isTTY            = isatty.IsTerminal(os.Stderr.Fd())
	)
	if s.File != "" {
		f := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out, closer, isTTY = f, f, false
	}

	logger, err := newLogger(out, s, isTTY)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	zerolog.SetGlobalLevel(ParseLevel(s.Level))
	log.Logger = logger
	return closer, nil
}

func newLogger(out io.Writer, s Settings, color bool) (zerolog.Logger, error) {
	switch strings.ToLower(s.Format) {
	case "", "text":
		out = zerolog.ConsoleWriter{Out: out, NoColor: !color, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Logger{}, errors.Errorf("unknown log format %q", s.Format)
	}

	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// Discard silences the global logger, used while a full screen UI owns the
// terminal and no log file was given.
func Discard() {
	log.Logger = zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
