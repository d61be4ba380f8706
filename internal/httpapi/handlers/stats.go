package handlers

import (
	"net/http"
	"strings"
	"time"

	"mediarelay/internal/httpkit"
	"mediarelay/internal/pkg/errors"
)

const (
	defaultStatsWindow = 24 * time.Hour
	maxStatsWindow     = 30 * 24 * time.Hour
)

// Stats returns the pool counters and, when the journal is enabled, the
// outcomes recorded within ?window= (a Go duration, default 24h).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	window := defaultStatsWindow
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxStatsWindow {
			return errors.ValidationField("window", "must be a duration between 0 and 720h")
		}
		window = d
	}

	out := map[string]any{}
	if h.workers != nil {
		pool, err := h.workers.Stats(ctx)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeTransient, "httpapi.stats", "queue unavailable")
		}
		out["pool"] = pool
	}
	if h.journal != nil {
		js, err := h.journal.Stats(ctx, time.Now().Add(-window))
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeTransient, "httpapi.stats", "journal unavailable")
		}
		out["outcomes"] = js
	}

	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}
