package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type slogLogger struct {
	base *slog.Logger
}

// New creates a JSON logger writing to stdout at info level
func New(service string) Logger {
	return NewWithConfig(service, Config{})
}

// NewWithConfig creates a logger with the given level, format and output
func NewWithConfig(service string, cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: renameAttrs,
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	hostname, _ := os.Hostname()
	return &slogLogger{
		base: slog.New(handler).With(
			slog.String("service", service),
			slog.String("hostname", hostname),
		),
	}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &slogLogger{base: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func (l *slogLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelInfo, action, message, requestID, details, nil)
}

func (l *slogLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelDebug, action, message, requestID, details, nil)
}

func (l *slogLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.log(slog.LevelError, action, message, requestID, details, err)
}

func (l *slogLogger) log(level slog.Level, action, message, requestID string, details map[string]interface{}, err error) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 4)
	attrs = append(attrs, slog.String("action", action))
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if len(details) > 0 {
		attrs = append(attrs, slog.Any("details", details))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", ErrorInfo{Msg: err.Error(), Stack: err.Error()}))
	}

	l.base.LogAttrs(ctx, level, message, attrs...)
}
