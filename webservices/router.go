package webservices

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every service. Tracing is enabled when tracer is non-nil.
func NewRouter(logger *logpkg.Logger, renderer Renderer, tracer *tracing.Tracer) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.DefaultLogger)
	router.Use(middleware.Recoverer)
	if tracer != nil {
		router.Use(tracing.Middleware(tracer))
	}

	router.Mount("/health", NewHealthService())
	router.Mount("/docs", NewDocsService(logger))
	router.Mount("/render", NewPosterService(logger, renderer))
	router.Handle("/metrics", promhttp.Handler())

	return router
}
