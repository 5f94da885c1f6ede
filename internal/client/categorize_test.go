package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/kjstillabower/weather-summary-service/internal/circuitbreaker"
)

// TestCategorizeError checks sentinels win over message matching and that
// net.Error values split into timeout and network.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid API key", ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
		{"wrapped invalid API key", fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"location not found", ErrLocationNotFound, ErrorCategoryLocationNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", ErrUpstreamFailure, ErrorCategoryUpstream},
		{"malformed", fmt.Errorf("%w: parse response", ErrMalformedResponse), ErrorCategoryParsing},
		{"circuit open", circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
		{"wrapped circuit open", fmt.Errorf("fetch Delhi: %w", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "api.openweathermap.org", IsTimeout: true}, ErrorCategoryTimeout},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, ErrorCategoryNetwork},
		{"timeout in message", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"network in message", errors.New("connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
