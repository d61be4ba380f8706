package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediarelay/internal/httpapi/handlers"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Log     *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("httpapi")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log, "/healthz", "/metrics"))
	r.Use(middleware.Timeout(30 * time.Second))

	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	h := handlers.New(d.Handlers)

	// ---- HEALTH ----
	r.Get("/healthz", h.Health)

	// ---- METRICS ----
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ---- API ----
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", middleware.WrapHandler(log, h.Stats))
		if d.Handlers.Submitter != nil {
			r.Post("/requests", middleware.WrapHandler(log, h.PostRequest))
		}
	})

	return r
}
