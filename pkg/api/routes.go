// Package api exposes the seed-selection pipeline and the run archive over
// HTTP.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the API under /api/v1 and the Prometheus handler at
// /metrics.
func SetupRoutes(router *mux.Router, handlers *Handlers) {
	router.Use(LoggingMiddleware, RecoveryMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	runs := api.PathPrefix("/runs").Subrouter()
	runs.HandleFunc("", handlers.StartRun).Methods("POST")
	runs.HandleFunc("", handlers.ListRuns).Methods("GET")
	runs.HandleFunc("/{runId}", handlers.GetRun).Methods("GET")
	runs.HandleFunc("/{runId}", handlers.DeleteRun).Methods("DELETE")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// NewRouter returns a router with every route registered.
func NewRouter(handlers *Handlers) *mux.Router {
	router := mux.NewRouter()
	SetupRoutes(router, handlers)
	return router
}
