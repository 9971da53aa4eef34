package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogMode string

const (
	LogModeDebug  LogMode = "debug"
	LogModePretty LogMode = "pretty"
	LogModeInfo   LogMode = "info"
	LogModeProd   LogMode = "prod"
	LogModeTest   LogMode = "test"
)

type Config struct {
	Level      zerolog.Level
	Pretty     bool
	TimeFormat string
	Output     io.Writer
}

var (
	log  = zerolog.New(os.Stdout).With().Timestamp().Logger()
	mu   sync.RWMutex
	once sync.Once
)

// ParseMode maps a CLI log mode onto a known mode, falling back to pretty.
func ParseMode(mode string) LogMode {
	switch LogMode(mode) {
	case LogModeDebug, LogModePretty, LogModeInfo, LogModeProd, LogModeTest:
		return LogMode(mode)
	default:
		return LogModePretty
	}
}

func InitWithMode(mode LogMode) {
	switch mode {
	case LogModeDebug:
		Init(Config{Level: zerolog.DebugLevel, Pretty: true})
	case LogModeInfo:
		Init(Config{Level: zerolog.InfoLevel, Pretty: true})
	case LogModeProd:
		Init(Config{Level: zerolog.InfoLevel})
	case LogModeTest:
		Init(Config{Level: zerolog.Disabled})
	default:
		Init(Config{Level: zerolog.DebugLevel, Pretty: true})
	}
}

func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
			NoColor:    false,
			FormatLevel: func(i interface{}) string {
				s, _ := i.(string)
				return colorizeLevel(s)
			},
			FormatMessage: func(i interface{}) string {
				s, _ := i.(string)
				return colorize(s, cyan)
			},
			FormatFieldName: func(i interface{}) string {
				return colorize(fmt.Sprint(i)+":", gray)
			},
			FormatFieldValue: func(i interface{}) string {
				switch v := i.(type) {
				case string:
					return colorize(v, blue)
				case json.Number:
					return colorize(v.String(), blue)
				default:
					return colorize(fmt.Sprint(v), blue)
				}
			},
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(cfg.Level)

	mu.Lock()
	log = zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
	mu.Unlock()
}

// ANSI color codes
const (
	gray  = "\x1b[37m"
	blue  = "\x1b[34m"
	cyan  = "\x1b[36m"
	red   = "\x1b[31m"
	reset = "\x1b[0m"
)

func colorize(s, color string) string {
	return color + s + reset
}

func colorizeLevel(level string) string {
	switch level {
	case "debug":
		return colorize("DBG", gray)
	case "info":
		return colorize("INF", blue)
	case "warn":
		return colorize("WRN", cyan)
	case "error":
		return colorize("ERR", red)
	case "fatal":
		return colorize("FTL", red)
	default:
		return colorize(level, blue)
	}
}

// Get returns the logger instance
func Get() zerolog.Logger {
	once.Do(func() {
		if zerolog.DefaultContextLogger == nil {
			InitWithMode(LogModePretty)
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	l := Get()
	return l.With().Str("component", component).Logger()
}
