package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var (
	mu             sync.RWMutex
	defaultLevel   string
	defaultConsole bool
)

// Configure sets the level and format used by loggers created afterwards.
// APP_ENV=dev and LOG_LEVEL still take precedence.
func Configure(level string, console bool) {
	mu.Lock()
	defer mu.Unlock()
	defaultLevel, defaultConsole = level, console
}

// NewZerologLogger creates a ZerologLogger writing to stderr, keeping stdout
// free for exported plans. APP_ENV=dev selects the console format and
// LOG_LEVEL the minimum level (info by default).
func NewZerologLogger(component string) Logger {
	mu.RLock()
	level, console := defaultLevel, defaultConsole
	mu.RUnlock()
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	var w io.Writer = os.Stderr
	if console || strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(component, w, level)
}

// NewWithWriter creates a ZerologLogger on w. An empty or unknown level
// falls back to info.
func NewWithWriter(component string, w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
