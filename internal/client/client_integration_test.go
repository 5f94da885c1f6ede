//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestOpenWeatherClient_FetchCurrent_Integration(t *testing.T) {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	client, err := NewOpenWeatherClient(apiKey, "https://api.openweathermap.org/data/2.5/weather", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	reading, err := client.FetchCurrent(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v (API key may not be activated yet)", err)
	}
	if reading.Condition == "" {
		t.Error("FetchCurrent() returned empty condition")
	}
	if reading.ObservedAt.IsZero() {
		t.Error("FetchCurrent() returned zero observation time")
	}
}
