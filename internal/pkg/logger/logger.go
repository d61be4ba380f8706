// Package logger is the relay's slog wrapper. Every logger carries the service
// name; component loggers add "component", and loggers derived from a request
// context add the fetch ID, principal and admin request ID found there.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey carries the admin HTTP request ID.
	RequestIDKey contextKey = "request_id"
	// FetchIDKey carries the fetch request ID.
	FetchIDKey contextKey = "fetch_id"
	// PrincipalKey carries the submitting user.
	PrincipalKey contextKey = "principal"
)

// contextAttrs are copied from a context onto a logger by FromContext.
var contextAttrs = []contextKey{RequestIDKey, FetchIDKey, PrincipalKey}

type Logger struct {
	*slog.Logger
}

type Config struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT and LOG_SOURCE.
func DefaultConfig() Config {
	return Config{
		Level:       envOr("LOG_LEVEL", "info"),
		Format:      envOr("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   os.Getenv("LOG_SOURCE") == "true",
		ServiceName: "mediarelay",
	}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		h = slog.NewTextHandler(out, opts)
	default:
		h = slog.NewJSONHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String(key, value))}
}

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }
func (l *Logger) WithFetchID(id string) *Logger { return l.with(string(FetchIDKey), id) }
func (l *Logger) WithPrincipal(principal string) *Logger { return l.with(string(PrincipalKey), principal) }

// WithFields attaches fields in key order.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// FromContext returns l enriched with the IDs stored in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	for _, key := range contextAttrs {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			out = out.with(string(key), v)
		}
	}
	return out
}

// LogError logs err at error level with the caller's file and line.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", slog.String("file", file), slog.Int("line", line)))
	}
	args = append(args, "error", err.Error())
	l.FromContext(ctx).Error(msg, args...)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func ContextWithFetchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, FetchIDKey, id)
}

func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// Printf lets libraries with a printf-style logger (tgbotapi) log at debug.
func (l *Logger) Printf(format string, v ...any) {
	l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *Logger) Println(v ...any) {
	l.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var lv slog.Level
	if s == "" || lv.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return lv
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
