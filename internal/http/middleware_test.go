package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
	"github.com/kjstillabower/weather-summary-service/internal/traffic"
)

func newTestRouter(t *testing.T, cfg RouterConfig) (http.Handler, *mockAggregator, *mockMailer) {
	t.Helper()
	serving(t)
	agg := &mockAggregator{}
	mailer := &mockMailer{}
	store := &mockSummaries{summaries: []models.DailySummary{{Date: day(2024, 6, 1), DominantCondition: "Clear"}}}
	hc := &HealthConfig{StorePing: func(ctx context.Context) error { return nil }}
	handler := NewHandler(store, agg, mailer, hc, zap.NewNop())
	return NewRouter(handler, cfg, zap.NewNop()), agg, mailer
}

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/daily-summaries", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
		if LoggerFromContext(r.Context()) == nil {
			t.Error("request logger missing from context")
		}
	})

	req := httptest.NewRequest("GET", "/daily-summaries", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-123")
	w := httptest.NewRecorder()
	CorrelationIDMiddleware(zap.NewNop())(inner).ServeHTTP(w, req)

	if seen != "test-correlation-123" {
		t.Errorf("context correlation ID = %q", seen)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "test-correlation-123" {
		t.Errorf("X-Correlation-ID = %q, want test-correlation-123", got)
	}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{})
	counter := observability.HTTPRequestsTotal.WithLabelValues("POST", "/trigger-summary", "2xx")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/trigger-summary", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("httpRequestsTotal{/trigger-summary,2xx} delta = %v, want 1", got)
	}
}

func TestMiddleware_MetricsRecordsNonOK(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(nil))
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	counter := observability.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "5xx")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("5xx delta = %v, want 1", got)
	}
}

func TestMiddleware_InFlightTracked(t *testing.T) {
	tracker := &InFlightTracker{}
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(tracker))
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = tracker.Count()
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/slow", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %d, want 1", during)
	}
	if tracker.Count() != 0 {
		t.Errorf("in-flight after request = %d, want 0", tracker.Count())
	}
}

func TestMiddleware_UnknownRoute404(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/weather/seattle", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestMiddleware_WrongMethodRejected(t *testing.T) {
	router, agg, _ := newTestRouter(t, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/trigger-summary", nil))

	if w.Code == http.StatusOK {
		t.Errorf("status = %d, want a 4xx rejection", w.Code)
	}
	if len(agg.sources) != 0 {
		t.Error("aggregator ran for GET /trigger-summary")
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
	})

	w := httptest.NewRecorder()
	TimeoutMiddleware(20*time.Millisecond)(inner).ServeHTTP(w, httptest.NewRequest("POST", "/trigger-summary", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	tracker := traffic.NewTracker(0)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	router, agg, _ := newTestRouter(t, RouterConfig{RateLimiter: limiter, Denials: tracker})

	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, httptest.NewRequest("POST", "/trigger-summary", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w1.Code)
	}

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest("POST", "/trigger-summary", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w2.Code)
	}

	var body map[string]map[string]string
	if err := json.NewDecoder(w2.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"]["code"] != "RATE_LIMITED" || body["error"]["requestId"] == "" {
		t.Errorf("error body = %v", body)
	}
	if len(agg.sources) != 1 {
		t.Errorf("aggregator runs = %d, want 1", len(agg.sources))
	}
	if tracker.DenialCount(time.Minute) != 1 {
		t.Errorf("DenialCount() = %d, want 1", tracker.DenialCount(time.Minute))
	}
}

func TestRateLimitMiddleware_SummariesNotLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	router, _, _ := newTestRouter(t, RouterConfig{RateLimiter: limiter})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/daily-summaries", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router, _, mailer := newTestRouter(t, RouterConfig{})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/send-test-email", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if mailer.count() != 5 {
		t.Errorf("SendTest calls = %d, want 5", mailer.count())
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{AllowedOrigins: []string{"http://localhost:8080"}})

	req := httptest.NewRequest(http.MethodOptions, "/trigger-summary", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("Access-Control-Allow-Methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCORSMiddleware_SimpleRequest(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest("GET", "/daily-summaries", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("metrics output missing httpRequestsTotal")
	}
}
