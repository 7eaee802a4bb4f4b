package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`
	// Caller adds file:line to every entry.
	Caller bool `mapstructure:"caller"`
}

var (
	global zerolog.Logger
	once   sync.Once
)

func init() {
	// Entry timestamps use the same unix-millisecond form as the wire protocol.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// New creates a configured zerolog.Logger writing to stdout.
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return NewWithWriter(w, cfg)
}

// NewWithWriter creates a configured zerolog.Logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) zerolog.Logger {
	ctx := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str(FieldService, cfg.ServiceName)
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Init initialises the global logger. Call once at service startup.
// The configured level becomes the process-wide level so SetLevel can change
// it later. Stdlib log output is bridged into zerolog.
func Init(cfg Config) {
	once.Do(func() {
		global = New(cfg).Level(zerolog.TraceLevel)
		SetLevel(cfg.Level)

		stdlog.SetFlags(0)
		stdlog.SetOutput(global.With().Str("source", "stdlog").Logger())
	})
}

// SetLevel changes the process-wide minimum level.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// L returns the global logger.
func L() zerolog.Logger {
	return global
}

func parseLevel(s string) zerolog.Level {
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
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
