package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// RouterConfig carries middleware settings for NewRouter.
type RouterConfig struct {
	RequestTimeout time.Duration
	// RateLimiter guards the trigger and test-email routes. Nil disables limiting.
	RateLimiter    *rate.Limiter
	Denials        DenialRecorder
	InFlight       *InFlightTracker
	AllowedOrigins []string
}

// NewRouter wires the API routes and middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(cfg.InFlight))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/daily-summaries", h.GetDailySummaries).Methods(http.MethodGet)

	limited := api.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(cfg.RateLimiter, cfg.Denials))
	limited.HandleFunc("/trigger-summary", h.TriggerSummary).Methods(http.MethodPost)
	limited.HandleFunc("/send-test-email", h.SendTestEmail).Methods(http.MethodGet)

	if len(cfg.AllowedOrigins) == 0 {
		return router
	}
	return CORSMiddleware(cfg.AllowedOrigins)(router)
}
