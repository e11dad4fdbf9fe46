// Package logger is the process-wide logging facade for the trading
// engine. Ambient logging goes through the formatted level helpers;
// order-flow events (opens, closes, settlements) go through Tradef so
// they carry a marker attribute and can be filtered out of a mixed
// stream.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar slog.LevelVar
	mu       sync.RWMutex
	root     *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	root = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	return slog.New(handler)
}

// SetOutput replaces the log destination. The daemon points this at a
// stdout+file multiwriter so session logs survive a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	root = newLogger(w)
	mu.Unlock()
}

// SetLevel parses a level name; anything unrecognized falls back to info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func active() *slog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = newLogger(os.Stdout)
	}
	return root
}

func Debugf(format string, v ...any) {
	active().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	active().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	active().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	active().Error(fmt.Sprintf(format, v...))
}

// Tradef records an order-flow event at info level with the trade marker.
func Tradef(format string, v ...any) {
	active().Info(fmt.Sprintf(format, v...), slog.String("event", "trade"))
}
