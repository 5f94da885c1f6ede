package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/alert"
	"github.com/kjstillabower/weather-summary-service/internal/cache"
	"github.com/kjstillabower/weather-summary-service/internal/config"
)

func TestStoreDSN(t *testing.T) {
	cfg := &config.Config{StorageBackend: "sqlite", SQLitePath: "weather.db", DatabaseURL: "postgres://x"}
	if got := storeDSN(cfg); got != "weather.db" {
		t.Errorf("sqlite dsn = %q, want weather.db", got)
	}
	cfg.StorageBackend = "postgres"
	if got := storeDSN(cfg); got != "postgres://x" {
		t.Errorf("postgres dsn = %q, want postgres://x", got)
	}
}

func TestNewSummaryCache(t *testing.T) {
	tests := []struct {
		backend       string
		wantNil       bool
		wantMemcached bool
	}{
		{backend: "in_memory"},
		{backend: "none", wantNil: true},
		{backend: "memcached", wantMemcached: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			c, mc, err := newSummaryCache(&config.Config{CacheBackend: tt.backend, MemcachedAddrs: "localhost:11211"})
			if err != nil {
				t.Fatalf("newSummaryCache: %v", err)
			}
			if (c == nil) != tt.wantNil {
				t.Errorf("cache nil = %v, want %v", c == nil, tt.wantNil)
			}
			if (mc != nil) != tt.wantMemcached {
				t.Errorf("memcached client present = %v, want %v", mc != nil, tt.wantMemcached)
			}
			if tt.backend == "in_memory" {
				if _, ok := c.(*cache.InMemoryCache); !ok {
					t.Errorf("cache type = %T, want *cache.InMemoryCache", c)
				}
			}
		})
	}
}

func TestNewSender_LogOnlyWithoutCredentials(t *testing.T) {
	s, err := newSender(&config.Config{SMTPHost: "smtp.gmail.com", SMTPPort: 587}, zap.NewNop())
	if err != nil {
		t.Fatalf("newSender: %v", err)
	}
	if _, ok := s.(alert.LogSender); !ok {
		t.Errorf("sender type = %T, want alert.LogSender", s)
	}
}

func TestNewSender_SMTPWithCredentials(t *testing.T) {
	s, err := newSender(&config.Config{
		SMTPHost:     "smtp.gmail.com",
		SMTPPort:     587,
		SMTPUsername: "alerts@example.com",
		SMTPPassword: "secret",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("newSender: %v", err)
	}
	if _, ok := s.(*alert.SMTPSender); !ok {
		t.Errorf("sender type = %T, want *alert.SMTPSender", s)
	}
}
