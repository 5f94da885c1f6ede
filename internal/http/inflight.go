package http

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// drainPollInterval is how often Drain re-reads the counter.
const drainPollInterval = 25 * time.Millisecond

// InFlightTracker counts requests being served and mirrors the count into the
// httpRequestsInFlight gauge. Shutdown drains it after the listener closes so a
// triggered aggregation is not cut off mid-write.
type InFlightTracker struct {
	n atomic.Int64
}

// Begin marks a request as started. The returned func ends it; extra calls are no-ops.
func (t *InFlightTracker) Begin() (end func()) {
	t.n.Add(1)
	observability.HTTPRequestsInFlight.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.n.Add(-1)
			observability.HTTPRequestsInFlight.Dec()
		})
	}
}

// Count returns the number of requests currently in flight.
func (t *InFlightTracker) Count() int64 {
	return t.n.Load()
}

// Drain blocks until no request is in flight or ctx is done.
func (t *InFlightTracker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for t.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
