package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-summary-service/internal/aggregate"
	"github.com/kjstillabower/weather-summary-service/internal/alert"
	"github.com/kjstillabower/weather-summary-service/internal/cache"
	"github.com/kjstillabower/weather-summary-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-summary-service/internal/client"
	"github.com/kjstillabower/weather-summary-service/internal/config"
	httphandler "github.com/kjstillabower/weather-summary-service/internal/http"
	"github.com/kjstillabower/weather-summary-service/internal/lifecycle"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
	"github.com/kjstillabower/weather-summary-service/internal/poller"
	"github.com/kjstillabower/weather-summary-service/internal/scheduler"
	"github.com/kjstillabower/weather-summary-service/internal/store"
	"github.com/kjstillabower/weather-summary-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	observability.SetTrackedCities(cfg.Cities)

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitFailureThreshold,
			SuccessThreshold: cfg.CircuitSuccessThreshold,
			Timeout:          cfg.CircuitOpenTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitFailureThreshold),
			zap.Duration("open_timeout", cfg.CircuitOpenTimeout))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 15*time.Second)
	backend, err := store.Open(openCtx, cfg.StorageBackend, storeDSN(cfg))
	openCancel()
	if err != nil {
		logger.Fatal("store", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	st := store.InLocation(backend, cfg.Location)
	logger.Info("store ready", zap.String("backend", cfg.StorageBackend))

	summaryCache, memcacheCloser, err := newSummaryCache(cfg)
	if err != nil {
		logger.Fatal("summary cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))
	summaries := cache.NewSummaryReader(st, summaryCache, cfg.CacheTTL, logger)

	sender, err := newSender(cfg, logger)
	if err != nil {
		logger.Fatal("alert sender", zap.Error(err))
	}
	notifier := alert.NewNotifier(sender, alert.Config{
		Recipient:   cfg.AlertRecipient,
		Threshold:   cfg.TemperatureThreshold,
		SendTimeout: cfg.AlertSendTimeout,
	}, logger)

	outcomes := traffic.NewTracker(cfg.DegradedWindow)
	weatherPoller := poller.New(weatherClient, st, notifier, outcomes, poller.Config{
		Cities:               cfg.Cities,
		TemperatureThreshold: cfg.TemperatureThreshold,
		WatchConditions:      cfg.WatchConditions,
		EmailOnCondition:     cfg.EmailOnCondition,
	}, logger)
	aggregator := aggregate.New(st, summaries, cfg.Location, logger)

	supervisor := scheduler.New(cfg.Location, logger)
	if err := supervisor.Add("poll", cfg.PollSchedule, cfg.PollJobTimeout, func(ctx context.Context) {
		weatherPoller.PollOnce(ctx)
	}); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	if err := supervisor.Add("aggregate", cfg.AggregationSchedule, cfg.AggregationJobTimeout, func(ctx context.Context) {
		_, _ = aggregator.Run(ctx, aggregate.SourceSchedule)
	}); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		StorePing:        st.Ping,
		FetchErrorRate:   outcomes.ErrorRate,
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		RateLimitDenials: outcomes.DenialCount,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(summaries, aggregator, notifier, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		RateLimiter:    limiter,
		Denials:        outcomes,
		InFlight:       inFlight,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	supervisor.Start()
	lifecycle.SetPhase(lifecycle.Serving)
	logger.Info("scheduler started",
		zap.Strings("cities", cfg.Cities),
		zap.String("poll_schedule", cfg.PollSchedule),
		zap.String("aggregation_schedule", cfg.AggregationSchedule),
		zap.String("timezone", cfg.Location.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduled jobs did not finish", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := inFlight.Drain(shutdownCtx); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("alert emails still pending", zap.Error(err))
	}

	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func storeDSN(cfg *config.Config) string {
	if cfg.StorageBackend == "postgres" {
		return cfg.DatabaseURL
	}
	return cfg.SQLitePath
}

// newSummaryCache returns the configured cache, nil for "none". The memcached
// client is also returned so it can be pinged and closed.
func newSummaryCache(cfg *config.Config) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		return mc, mc, nil
	case "none":
		return nil, nil, nil
	default:
		return cache.NewInMemoryCache(), nil, nil
	}
}

// newSender returns an SMTP sender, or a log-only sender when credentials are absent.
func newSender(cfg *config.Config, logger *zap.Logger) (alert.Sender, error) {
	if !cfg.SMTPConfigured() {
		logger.Warn("EMAIL_USER/EMAIL_PASS not set; alerts will be logged only")
		return alert.LogSender{Logger: logger}, nil
	}
	return alert.NewSMTPSender(alert.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.AlertSendTimeout,
	})
}
