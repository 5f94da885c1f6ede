package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: 5xx on /daily-summaries (storage down).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Requests rejected by the rate limiter on the trigger and test-email routes.
	RateLimitDeniedTotal prometheus.Counter

	// OpenWeatherMap API call rate by outcome.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency. Watch for: p95 approaching weather_api.timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Completed poll cycles. A flat line means the scheduler stopped.
	PollCyclesTotal prometheus.Counter

	// Wall time of a full poll cycle across all cities.
	PollCycleDuration prometheus.Histogram

	// Readings persisted, by city (allow-list; others use city=other).
	ReadingsSavedTotal *prometheus.CounterVec

	// Per-city poll failures by error category (see client.CategorizeError).
	PollFailuresTotal *prometheus.CounterVec

	// Alert emails by kind (temperature, condition, test) and status (sent, failed).
	AlertsTotal *prometheus.CounterVec

	// Readings whose condition matched the watch-list.
	ConditionDetectionsTotal *prometheus.CounterVec

	// Aggregation runs by source (schedule, trigger) and result (written, empty, error).
	AggregationRunsTotal *prometheus.CounterVec

	// Aggregation latency (read readings + upsert).
	AggregationDuration prometheus.Histogram

	// Summary list cache lookups by result (hit, miss, error).
	SummaryCacheTotal *prometheus.CounterVec

	// Circuit breaker transitions for the weather provider.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Current circuit breaker state: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests rejected with 429 by the rate limiter",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	PollCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollCyclesTotal",
			Help: "Total number of completed weather poll cycles",
		},
	)
	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pollCycleDurationSeconds",
			Help:    "Duration of a full poll cycle across all configured cities",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	ReadingsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingsSavedTotal",
			Help: "Readings persisted by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	PollFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollFailuresTotal",
			Help: "Per-city poll failures by error category",
		},
		[]string{"category"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsTotal",
			Help: "Alert emails by kind and delivery status",
		},
		[]string{"kind", "status"},
	)
	ConditionDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conditionDetectionsTotal",
			Help: "Readings whose condition matched the watch-list",
		},
		[]string{"condition"},
	)
	AggregationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregationRunsTotal",
			Help: "Daily aggregation runs by source and result",
		},
		[]string{"source", "result"},
	)
	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregationDurationSeconds",
			Help:    "Daily aggregation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	SummaryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaryCacheTotal",
			Help: "Summary list cache lookups by result",
		},
		[]string{"result"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		WeatherAPICallsTotal, WeatherAPIDuration,
		PollCyclesTotal, PollCycleDuration, ReadingsSavedTotal, PollFailuresTotal,
		AlertsTotal, ConditionDetectionsTotal,
		AggregationRunsTotal, AggregationDuration,
		SummaryCacheTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Called with the poller's city list.
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCity(c)] = struct{}{}
	}
}

// CityLabel returns the metric label for city, or "other" when the city is not tracked.
func CityLabel(city string) string {
	c := normalizeCity(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
