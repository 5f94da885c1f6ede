package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// Sources label who asked for an aggregation.
const (
	SourceSchedule = "schedule"
	SourceTrigger  = "trigger"
)

// ErrNoReadings is returned by Summarize for an empty input.
var ErrNoReadings = errors.New("no readings to summarize")

// Store is the persistence the Aggregator needs.
type Store interface {
	ReadingsBetween(ctx context.Context, from, to time.Time) ([]models.Reading, error)
	UpsertSummary(ctx context.Context, s models.DailySummary) error
}

// Invalidator drops cached summary lists after a write.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Summarize computes the day's summary from readings. The dominant condition is
// the most frequent one; ties go to the lexicographically smallest label.
func Summarize(readings []models.Reading, day time.Time) (models.DailySummary, error) {
	if len(readings) == 0 {
		return models.DailySummary{}, ErrNoReadings
	}

	sum := 0.0
	maxTemp := math.Inf(-1)
	minTemp := math.Inf(1)
	counts := make(map[string]int)
	for _, r := range readings {
		sum += r.Temperature
		maxTemp = math.Max(maxTemp, r.Temperature)
		minTemp = math.Min(minTemp, r.Temperature)
		counts[r.Condition]++
	}

	return models.DailySummary{
		Date:              day,
		AvgTemp:           sum / float64(len(readings)),
		MaxTemp:           maxTemp,
		MinTemp:           minTemp,
		DominantCondition: dominant(counts),
	}, nil
}

func dominant(counts map[string]int) string {
	labels := make([]string, 0, len(counts))
	for c := range counts {
		labels = append(labels, c)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, c := range labels[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Aggregator summarizes the current local day into the summary store.
type Aggregator struct {
	store  Store
	cache  Invalidator
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// New returns an Aggregator. loc defaults to time.Local; cache may be nil.
func New(store Store, cache Invalidator, loc *time.Location, logger *zap.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:  store,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Run aggregates today's readings. A day without readings writes nothing and
// returns (nil, nil). Concurrent runs are not serialized; the date-keyed
// upsert leaves the last writer's snapshot.
func (a *Aggregator) Run(ctx context.Context, source string) (*models.DailySummary, error) {
	start := time.Now()
	defer func() {
		observability.AggregationDuration.Observe(time.Since(start).Seconds())
	}()

	now := a.now()
	day := StartOfDay(now, a.loc)
	// AddDate keeps DST days correct; +24h would not.
	next := day.AddDate(0, 0, 1)

	readings, err := a.store.ReadingsBetween(ctx, day, next)
	if err != nil {
		observability.AggregationRunsTotal.WithLabelValues(source, "error").Inc()
		a.logger.Error("read readings failed", zap.String("source", source), zap.Error(err))
		return nil, fmt.Errorf("read readings: %w", err)
	}
	if len(readings) == 0 {
		observability.AggregationRunsTotal.WithLabelValues(source, "empty").Inc()
		a.logger.Info("no readings for today, summary not written",
			zap.String("source", source),
			zap.Time("date", day),
		)
		return nil, nil
	}

	summary, err := Summarize(readings, day)
	if err != nil {
		observability.AggregationRunsTotal.WithLabelValues(source, "error").Inc()
		return nil, err
	}
	summary.CreatedAt = now

	if err := a.store.UpsertSummary(ctx, summary); err != nil {
		observability.AggregationRunsTotal.WithLabelValues(source, "error").Inc()
		a.logger.Error("upsert summary failed", zap.String("source", source), zap.Error(err))
		return nil, fmt.Errorf("upsert summary: %w", err)
	}
	if a.cache != nil {
		a.cache.Invalidate(ctx)
	}

	observability.AggregationRunsTotal.WithLabelValues(source, "written").Inc()
	a.logger.Info("daily summary written",
		zap.String("source", source),
		zap.Time("date", day),
		zap.Int("readings", len(readings)),
		zap.Float64("avg_temp", summary.AvgTemp),
		zap.Float64("max_temp", summary.MaxTemp),
		zap.Float64("min_temp", summary.MinTemp),
		zap.String("dominant_condition", summary.DominantCondition),
	)
	return &summary, nil
}
