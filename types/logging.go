package types

import (
	"log/slog"
	"strings"
)

type LogLevel slog.Level

const (
	LevelTrace = slog.Level(slog.LevelDebug - 1)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var logLevelMap = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// ParseLogLevel maps a case-insensitive level name onto a slog.Level.
func ParseLogLevel(level string) (slog.Level, bool) {
	l, ok := logLevelMap[strings.ToLower(level)]
	return l, ok
}
