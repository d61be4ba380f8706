// Package middleware holds the admin API's HTTP middleware and its JSON error
// envelope.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// RequestID propagates the caller's X-Request-ID, or a fresh UUID when the
// header is missing or unusable, into the response and the log context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !usableRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

// usableRequestID accepts short printable ASCII so a client cannot break log lines.
func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// Logging writes one line per request. Successful requests to a quiet path
// (probes, scrapes) go to debug; 4xx to warn; 5xx to error.
func Logging(log *logger.Logger, quiet ...string) func(http.Handler) http.Handler {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			_, isQuiet := quietPaths[r.URL.Path]

			l := log.FromContext(r.Context())
			emit := l.Info
			switch {
			case status >= http.StatusInternalServerError:
				emit = l.Error
			case status >= http.StatusBadRequest:
				emit = l.Warn
			case isQuiet:
				emit = l.Debug
			}
			emit("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery turns a handler panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can drop the connection.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.FromContext(r.Context()).Error("handler panic",
					"panic", fmt.Sprint(rec),
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, errors.CodeInternal, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout puts a deadline on the request context.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorHandlerFunc is a handler that reports failure by returning it.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler renders a returned error as the JSON envelope with the status
// of its code. Server-side failures are logged with their stack and answered
// with a generic message.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := errors.GetCode(err)
		status := errors.GetHTTPStatus(err)
		fields := errors.GetFields(err)

		args := []any{"code", code, "status", status, "path", r.URL.Path, "error", err.Error()}
		l := log.FromContext(r.Context())
		if status < http.StatusInternalServerError {
			l.Warn("request rejected", args...)
			writeError(w, code, publicMessage(err), fields)
			return
		}

		var e *errors.Error
		if errors.As(err, &e) {
			args = append(args, "stack", e.StackTrace())
		}
		l.Error("request failed", args...)
		writeError(w, code, "internal server error", nil)
	}
}

// publicMessage is the message of the outermost classified error, without the
// op and cause chain.
func publicMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

type envelope struct {
	Error struct {
		Code    errors.Code    `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, code errors.Code, message string, details map[string]any) {
	var body envelope
	body.Error.Code = code
	body.Error.Message = message
	body.Error.Details = details

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader((&errors.Error{Code: code}).HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
