// Package server wires HTTP handlers into a router for the popchat
// application.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the application router. Every route,
// the WebSocket upgrade included, sits behind the per-address request budget.
func SetupRoutes() *mux.Router {
	cfg := currentConfig()

	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(rateLimitMiddleware(newIPLimiterPool(cfg.HTTPRateLimit))))
	r.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler)
	r.PathPrefix("/").Handler(StaticHandler(cfg.StaticDir))
	return r
}
