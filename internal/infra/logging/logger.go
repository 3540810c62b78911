// Package logging configures log/slog for the whole process. Loggers are
// named after the component that owns them ("authclient.http_client") and
// LOG_FILTER can raise or lower the level per name prefix.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Constants for log levels that match slog.Level values.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const loggerNameKey = "logger"

// Type aliases for commonly used slog types.
type (
	Logger  = *slog.Logger
	Handler = slog.Handler
	Level   = slog.Level
)

var (
	// ErrInvalidLevel is returned for a level name other than debug, info, warn or error.
	ErrInvalidLevel = errors.New("invalid log level")
	// ErrInvalidFilter is returned for a LOG_FILTER entry that is not "name:level".
	ErrInvalidFilter = errors.New("invalid log filter")
)

// LoggerConfig holds configuration parameters for logging.
type LoggerConfig struct {
	// Output is "stdout", "stderr", "discard" or a file path
	Output string `env:"OUTPUT" envDefault:"stderr"`
	// Level is the minimum level ("debug", "info", "warn", "error")
	Level string `env:"LEVEL" envDefault:"info"`
	// Filter overrides the level per logger name prefix ("authclient:debug,guard:warn")
	Filter string `env:"FILTER"`
	// JSON switches from console to JSON output
	JSON bool `env:"JSON" envDefault:"false"`
	// Color enables ANSI colors in console output
	Color bool `env:"COLOR" envDefault:"true"`

	// OutputHandle overrides Output, mostly for tests.
	OutputHandle io.Writer
}

//nolint:gochecknoglobals
var (
	Group      = slog.Group
	GroupValue = slog.GroupValue

	state struct {
		sync.Mutex

		appName   string
		cfg       LoggerConfig
		output    io.Writer
		level     slog.LevelVar
		pkgLevels map[string]slog.Level
	}
)

// Configure sets up logging for the process. Loggers obtained before the
// first call discard everything.
func Configure(ctx context.Context, cfg LoggerConfig, appName string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	pkgLevels, err := parseFilter(cfg.Filter)
	if err != nil {
		return err
	}

	output := cfg.OutputHandle
	if output == nil {
		if output, err = openOutput(cfg.Output); err != nil {
			return err
		}
	}

	state.Lock()
	state.appName = appName
	state.cfg = cfg
	state.output = output
	state.pkgLevels = pkgLevels
	state.level.Set(level)
	state.Unlock()

	slog.SetLogLoggerLevel(level)

	GetLogger("infra.logging").DebugContext(ctx, "logging configured", Group("config",
		"app", appName,
		"output", cfg.Output,
		"level", cfg.Level,
		"filter", cfg.Filter,
		"json", cfg.JSON,
	))

	return nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "discard":
		return io.Discard, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// GetLogger returns a logger named name.
func GetLogger(name string) Logger {
	state.Lock()
	defer state.Unlock()

	if state.output == nil || state.output == io.Discard {
		return NewNopLogger()
	}

	var handler slog.Handler

	if state.cfg.JSON {
		//nolint:exhaustruct
		handler = slog.NewJSONHandler(state.output, &slog.HandlerOptions{
			AddSource: true,
			Level:     minLevel(state.level.Level(), state.pkgLevels),
		})
	} else {
		handler = NewConsoleHandler(state.output, &state.level, state.pkgLevels, !state.cfg.Color)
	}

	logger := slog.New(NewContextHandler(handler))

	if state.appName != "" {
		logger = logger.With("app", state.appName)
	}

	return logger.With(loggerNameKey, name)
}

// GetLogLogger adapts logger for code that wants a *log.Logger, such as
// http.Server.ErrorLog.
func GetLogLogger(logger Logger, level Level) *log.Logger {
	return slog.NewLogLogger(logger.With("stdlog", true).Handler(), level)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
	}
}

func parseFilter(filter string) (map[string]slog.Level, error) {
	levels := make(map[string]slog.Level)

	for entry := range strings.SplitSeq(filter, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, levelName, ok := strings.Cut(entry, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, entry)
		}

		level, err := parseLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}

		levels[name] = level
	}

	return levels, nil
}

// levelFor returns the level of the longest name prefix in pkgLevels, or
// fallback when none matches.
func levelFor(name string, pkgLevels map[string]slog.Level, fallback slog.Level) slog.Level {
	for key := name; key != ""; {
		if level, ok := pkgLevels[key]; ok {
			return level
		}

		i := strings.LastIndex(key, ".")
		if i < 0 {
			break
		}

		key = key[:i]
	}

	return fallback
}

func minLevel(level slog.Level, pkgLevels map[string]slog.Level) slog.Level {
	for _, l := range pkgLevels {
		level = min(level, l)
	}

	return level
}
