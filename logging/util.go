package logging

import (
	"log/slog"
	"strings"
)

// ParseLevel accepts slog level names in any case, including offsets like
// "WARN+2". Anything else yields fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return fallback
	}
	return lvl
}

// LevelFromString is ParseLevel for optional config values, defaulting to INFO.
func LevelFromString(str *string) slog.Level {
	if str == nil {
		return slog.LevelInfo
	}
	return ParseLevel(*str, slog.LevelInfo)
}
