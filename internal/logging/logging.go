package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	initOnce sync.Once
	logger   *slog.Logger
	exitFunc = os.Exit

	zapOnce   sync.Once
	zapLogger *zap.Logger
)

// L returns the shared application logger, initializing it on first use.
func L() *slog.Logger {
	initOnce.Do(func() {
		logger = slog.New(newHandler())
	})
	return logger
}

func newHandler() slog.Handler {
	level := parseLevel(os.Getenv("SCALEX_LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: strings.EqualFold(os.Getenv("SCALEX_LOG_SOURCE"), "true"),
	}

	if jsonFormat() {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	// Text handler writes to stderr so `scalex render` output on stdout stays clean.
	return slog.NewTextHandler(os.Stderr, opts)
}

func jsonFormat() bool {
	switch strings.ToLower(os.Getenv("SCALEX_LOG_FORMAT")) {
	case "json", "structured":
		return true
	default:
		return false
	}
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap returns the zap logger used by the HTTP access log middleware. It honours
// the same environment variables as L.
func Zap() *zap.Logger {
	zapOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		if !jsonFormat() {
			cfg = zap.NewDevelopmentConfig()
		}
		cfg.Level = zap.NewAtomicLevelAt(zapLevel(parseLevel(os.Getenv("SCALEX_LOG_LEVEL"))))
		cfg.OutputPaths = []string{"stderr"}
		built, err := cfg.Build()
		if err != nil {
			L().Warn("falling back to no-op access logger", "error", err)
			built = zap.NewNop()
		}
		zapLogger = built
	})
	return zapLogger
}

// Replace installs l as the shared logger and returns a function that puts the
// previous one back. Tests use it to capture log records.
func Replace(l *slog.Logger) (restore func()) {
	prev := L()
	logger = l
	return func() { logger = prev }
}

// With returns a child logger with additional attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Fatal logs the message at error level and exits with status 1.
func Fatal(msg string, args ...any) {
	L().Error(msg, args...)
	exitFunc(1)
}
