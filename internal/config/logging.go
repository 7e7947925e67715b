package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below Debug and is used for full prompts and raw
// provider payloads. -8 is the OpenTelemetry Trace severity.
const LevelTrace = slog.Level(-8)

var logLevels = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel maps trace, debug, info, warn (or warning) and error,
// in any case, to a level. The empty string is info.
func ParseLogLevel(s string) (slog.Level, error) {
	if level, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLogLevelNames is a ReplaceAttr hook that prints LevelTrace as
// TRACE instead of slog's default DEBUG-4.
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// NewLogger returns a logger writing to w in the given format, "json"
// or anything else for text.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLogLevelNames}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Logger builds the logger described by log_level and log_format. def
// applies when log_level is unset; an invalid level also falls back to
// it, since Validate reports that case.
func (c *Config) Logger(w io.Writer, def slog.Level) *slog.Logger {
	level := def
	if c.LogLevel != "" {
		if l, err := ParseLogLevel(c.LogLevel); err == nil {
			level = l
		}
	}
	return NewLogger(w, level, c.LogFormat)
}
