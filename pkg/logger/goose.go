package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// GooseLogger adapts a slog.Logger to goose's Printf/Fatalf logger.
type GooseLogger struct {
	log *slog.Logger
}

// Goose wraps l for goose.SetLogger.
func Goose(l *slog.Logger) *GooseLogger {
	return &GooseLogger{log: l.With(Component("migrations"))}
}

// Fatalf logs at error level. It does not exit; goose returns the error to the caller.
func (g *GooseLogger) Fatalf(format string, v ...any) {
	g.log.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g *GooseLogger) Printf(format string, v ...any) {
	g.log.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}
