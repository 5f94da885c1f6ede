package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-summary-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// WeatherProvider fetches the current conditions for one city.
type WeatherProvider interface {
	FetchCurrent(ctx context.Context, city string) (models.Reading, error)
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// maxResponseBytes caps the body read from the provider.
const maxResponseBytes = 1 << 20

type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client for the OpenWeatherMap current-weather endpoint.
// timeout bounds each request; the poller never retries within a cycle.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every fetch through cb. Nil disables the breaker.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type openWeatherResponse struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

// FetchCurrent performs one request for city. The returned Reading carries the
// configured city name, not the provider's display name.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, city string) (models.Reading, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}
	var reading models.Reading
	err := c.breaker.Call(ctx, func() error {
		var err error
		reading, err = c.callAPI(ctx, city)
		return err
	})
	if err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.Reading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Reading{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Reading{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.Reading{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.Reading{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.Reading{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Reading{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	return mapResponse(apiResp, city)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

// mapResponse converts the provider payload. A payload without a temperature,
// a condition or an observation time is rejected rather than stored with zero values.
func mapResponse(apiResp openWeatherResponse, city string) (models.Reading, error) {
	if apiResp.Main == nil || apiResp.Main.Temp == nil {
		return models.Reading{}, fmt.Errorf("%w: missing main temperature", ErrMalformedResponse)
	}
	if len(apiResp.Weather) == 0 || apiResp.Weather[0].Main == "" {
		return models.Reading{}, fmt.Errorf("%w: missing weather condition", ErrMalformedResponse)
	}
	if apiResp.Dt <= 0 {
		return models.Reading{}, fmt.Errorf("%w: missing observation time", ErrMalformedResponse)
	}

	return models.Reading{
		City:        city,
		Condition:   apiResp.Weather[0].Main,
		Temperature: *apiResp.Main.Temp,
		FeelsLike:   apiResp.Main.FeelsLike,
		ObservedAt:  time.Unix(apiResp.Dt, 0),
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
