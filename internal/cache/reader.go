package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// SummariesKey is the single cache key holding the full summary list.
const SummariesKey = "daily-summaries"

// SummaryLister is implemented by the store. Declared here to keep cache free of a
// dependency on the store package.
type SummaryLister interface {
	ListSummaries(ctx context.Context) ([]models.DailySummary, error)
}

// SummaryReader serves the summary list cache-aside: cache first, store on miss,
// then populate. Cache failures are logged and fall through to the store.
type SummaryReader struct {
	store  SummaryLister
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	// gen advances on every Invalidate. A store read that overlaps an
	// invalidation does not populate the cache.
	gen atomic.Uint64
}

// NewSummaryReader returns a reader. A nil cache or non-positive ttl disables caching.
func NewSummaryReader(store SummaryLister, cache Cache, ttl time.Duration, logger *zap.Logger) *SummaryReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryReader{store: store, cache: cache, ttl: ttl, logger: logger}
}

func (r *SummaryReader) enabled() bool {
	return r.cache != nil && r.ttl > 0
}

// ListSummaries returns every summary, newest date first.
func (r *SummaryReader) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	if r.enabled() {
		cached, ok, err := r.cache.Get(ctx, SummariesKey)
		switch {
		case err != nil:
			observability.SummaryCacheTotal.WithLabelValues("error").Inc()
			r.logger.Warn("summary cache get failed", zap.Error(err))
		case ok:
			observability.SummaryCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			observability.SummaryCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	gen := r.gen.Load()
	summaries, err := r.store.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}

	if r.enabled() && r.gen.Load() == gen {
		if err := r.cache.Set(ctx, SummariesKey, summaries, r.ttl); err != nil {
			r.logger.Warn("summary cache set failed", zap.Error(err))
		}
	}
	return summaries, nil
}

// Invalidate drops the cached list. Called after every summary upsert.
func (r *SummaryReader) Invalidate(ctx context.Context) {
	r.gen.Add(1)
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, SummariesKey); err != nil {
		r.logger.Warn("summary cache invalidate failed", zap.Error(err))
	}
}
