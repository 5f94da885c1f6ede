package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/aggregate"
	"github.com/kjstillabower/weather-summary-service/internal/lifecycle"
	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// Response bodies for the plain-text endpoints.
const (
	msgSummariesError = "Error retrieving daily summaries"
	msgSummaryDone    = "Daily summary calculated."
	msgSummaryError   = "Error calculating daily summary"
	msgTestEmailSent  = "Test email sent!"
)

// SummaryLister returns every stored summary, newest date first.
type SummaryLister interface {
	ListSummaries(ctx context.Context) ([]models.DailySummary, error)
}

// SummaryRunner computes and stores today's summary.
type SummaryRunner interface {
	Run(ctx context.Context, source string) (*models.DailySummary, error)
}

// TestMailer sends the sample alert email.
type TestMailer interface {
	SendTest()
}

// HealthConfig holds dependency checks and thresholds for the health handler.
type HealthConfig struct {
	// StorePing checks the summary store. Required.
	StorePing func(ctx context.Context) error
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// FetchErrorRate reports provider fetch (errors, total) within window. Nil disables the degraded check.
	FetchErrorRate   func(window time.Duration) (errors, total int)
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// RateLimitDenials reports 429s within DegradedWindow. Informational only.
	RateLimitDenials func(window time.Duration) int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	summaries        SummaryLister
	aggregator       SummaryRunner
	mailer           TestMailer
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	summaries SummaryLister,
	aggregator SummaryRunner,
	mailer TestMailer,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		summaries:    summaries,
		aggregator:   aggregator,
		mailer:       mailer,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetDailySummaries handles GET /daily-summaries.
func (h *Handler) GetDailySummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.summaries.ListSummaries(r.Context())
	if err != nil {
		h.requestLogger(r).Error("list daily summaries failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgSummariesError)
		return
	}
	if summaries == nil {
		summaries = []models.DailySummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// TriggerSummary handles POST /trigger-summary. Aggregation runs synchronously
// so the response reflects the outcome.
func (h *Handler) TriggerSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.aggregator.Run(r.Context(), aggregate.SourceTrigger)
	if err != nil {
		h.requestLogger(r).Error("triggered aggregation failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgSummaryError)
		return
	}
	h.requestLogger(r).Info("triggered aggregation complete", zap.Bool("written", summary != nil))
	writeText(w, http.StatusOK, msgSummaryDone)
}

// SendTestEmail handles GET /send-test-email. The send itself is asynchronous.
func (h *Handler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	h.mailer.SendTest()
	h.requestLogger(r).Info("test email dispatched")
	writeText(w, http.StatusOK, msgTestEmailSent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > store unreachable > degraded provider > healthy.
// The cache is reported but never fails the check; reads fall back to the store.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, map[string]string) {
	checks := make(map[string]string)

	switch lifecycle.CurrentPhase() {
	case lifecycle.ShuttingDown:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	case lifecycle.Starting:
		return healthResult{"starting", http.StatusServiceUnavailable, "startup"}, checks
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}, checks
	}

	if h.healthConfig.CachePing != nil {
		checks["cache"] = healthyString(h.healthConfig.CachePing() == nil)
	}

	if h.healthConfig.StorePing != nil {
		storeOK := h.healthConfig.StorePing(ctx) == nil
		checks["store"] = healthyString(storeOK)
		if !storeOK {
			return healthResult{"unhealthy", http.StatusServiceUnavailable, "store_unreachable"}, checks
		}
	}

	if h.healthConfig.FetchErrorRate != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := h.healthConfig.FetchErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 && float64(errors)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, checks
		}
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig.RateLimitDenials != nil && h.healthConfig.DegradedWindow > 0 {
		checks["rateLimitDenials"] = strconv.Itoa(h.healthConfig.RateLimitDenials(h.healthConfig.DegradedWindow))
	}

	return healthResult{"healthy", http.StatusOK, ""}, checks
}

func healthyString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// requestLogger returns the correlation-scoped logger set by CorrelationIDMiddleware,
// falling back to the handler logger.
func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if l := LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return h.logger
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
