//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/aggregate"
	"github.com/kjstillabower/weather-summary-service/internal/alert"
	"github.com/kjstillabower/weather-summary-service/internal/cache"
	"github.com/kjstillabower/weather-summary-service/internal/client"
	"github.com/kjstillabower/weather-summary-service/internal/poller"
	"github.com/kjstillabower/weather-summary-service/internal/store"
	"github.com/kjstillabower/weather-summary-service/internal/traffic"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	Cities        []string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}

	cities := []string{"Delhi", "Mumbai"}
	if v := os.Getenv("INTEGRATION_CITIES"); v != "" {
		cities = strings.Split(v, ",")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		Cities:        cities,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// RecordingSender captures alert emails instead of delivering them.
type RecordingSender struct {
	mu   sync.Mutex
	sent []alert.Message
}

func (s *RecordingSender) Send(ctx context.Context, msg alert.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Messages returns a copy of every captured message.
func (s *RecordingSender) Messages() []alert.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Message(nil), s.sent...)
}

// Stack is the service wired against the live provider, a temp SQLite file
// and a recording mail sender.
type Stack struct {
	Store      *store.SQLiteStore
	Summaries  *cache.SummaryReader
	Poller     *poller.Poller
	Aggregator *aggregate.Aggregator
	Notifier   *alert.Notifier
	Sender     *RecordingSender
	Outcomes   *traffic.Tracker
}

// SetupIntegrationStack builds a Stack. Cleanup is registered on t.
func SetupIntegrationStack(t *testing.T, cfg IntegrationTestConfig) *Stack {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	st, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "weather.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var summaryCache cache.Cache = cache.NewInMemoryCache()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			summaryCache = mc
			t.Cleanup(func() { mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	reader := cache.NewSummaryReader(st, summaryCache, time.Minute, logger)

	weatherClient := SetupIntegrationClient(t, cfg)
	sender := &RecordingSender{}
	notifier := alert.NewNotifier(sender, alert.Config{Recipient: "ops@example.com", Threshold: 35, SendTimeout: 5 * time.Second}, logger)
	outcomes := traffic.NewTracker(0)

	p := poller.New(weatherClient, st, notifier, outcomes, poller.Config{
		Cities:               cfg.Cities,
		TemperatureThreshold: 35,
		WatchConditions:      []string{"Rain"},
	}, logger)

	return &Stack{
		Store:      st,
		Summaries:  reader,
		Poller:     p,
		Aggregator: aggregate.New(st, reader, time.Local, logger),
		Notifier:   notifier,
		Sender:     sender,
		Outcomes:   outcomes,
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
