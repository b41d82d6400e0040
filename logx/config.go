package logx

import (
	"log/slog"
	"strings"
)

type RotateMode int

const (
	RotateHourly RotateMode = iota
	RotateSize
)

type Config struct {
	AppName string     // file name prefix
	Level   slog.Level

	LogDir string

	ConsoleEnabled bool
	ConsoleColored bool

	Rotate RotateMode

	// RotateSize only
	MaxFileSizeMB int
	// newest files kept, by modification time
	MaxBackups int

	// async queue length, 10000 when <= 0
	QueueSize int
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
