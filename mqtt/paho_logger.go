package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// pahoLogger routes the paho client's internal logging to slog.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...any) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...any) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func installPahoLoggers(logger *slog.Logger) {
	paho.CRITICAL = pahoLogger{logger, slog.LevelError}
	paho.ERROR = pahoLogger{logger, slog.LevelError}
	paho.WARN = pahoLogger{logger, slog.LevelWarn}
}
