package poller

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/client"
	"github.com/kjstillabower/weather-summary-service/internal/models"
	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// ReadingSaver persists one reading.
type ReadingSaver interface {
	SaveReading(ctx context.Context, r models.Reading) error
}

// Notifier receives alert events. Calls must not block.
type Notifier interface {
	NotifyTemperature(city string, temp float64)
	NotifyCondition(city, condition string)
}

// OutcomeRecorder tracks fetch outcomes for health reporting.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Config holds the poll targets and alert rules.
type Config struct {
	Cities               []string
	TemperatureThreshold float64
	// WatchConditions are compared case-insensitively with Reading.Condition.
	WatchConditions  []string
	EmailOnCondition bool
}

// CycleResult summarizes one PollOnce call.
type CycleResult struct {
	Saved  int
	Failed []string
	Alerts int
}

// Poller fetches current weather for each configured city and stores a reading.
type Poller struct {
	provider client.WeatherProvider
	store    ReadingSaver
	notifier Notifier
	outcomes OutcomeRecorder
	cfg      Config
	watch    map[string]struct{}
	logger   *zap.Logger
}

// New returns a Poller. notifier and outcomes may be nil.
func New(provider client.WeatherProvider, store ReadingSaver, notifier Notifier, outcomes OutcomeRecorder, cfg Config, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	watch := make(map[string]struct{}, len(cfg.WatchConditions))
	for _, c := range cfg.WatchConditions {
		watch[normalizeCondition(c)] = struct{}{}
	}
	return &Poller{
		provider: provider,
		store:    store,
		notifier: notifier,
		outcomes: outcomes,
		cfg:      cfg,
		watch:    watch,
		logger:   logger,
	}
}

// PollOnce performs one cycle. Cities are polled in configured order; a
// failure for one city is logged and counted and the cycle continues.
func (p *Poller) PollOnce(ctx context.Context) CycleResult {
	start := time.Now()
	var res CycleResult

	for _, city := range p.cfg.Cities {
		if ctx.Err() != nil {
			res.Failed = append(res.Failed, city)
			p.logger.Warn("poll cycle cancelled", zap.String("city", city), zap.Error(ctx.Err()))
			continue
		}

		reading, err := p.provider.FetchCurrent(ctx, city)
		if err != nil {
			p.recordError()
			category := client.CategorizeError(err)
			observability.PollFailuresTotal.WithLabelValues(string(category)).Inc()
			p.logger.Error("weather fetch failed",
				zap.String("city", city),
				zap.String("category", string(category)),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, city)
			continue
		}
		p.recordSuccess()

		if err := p.store.SaveReading(ctx, reading); err != nil {
			observability.PollFailuresTotal.WithLabelValues(string(client.ErrorCategoryStorage)).Inc()
			p.logger.Error("save reading failed",
				zap.String("city", city),
				zap.String("category", string(client.ErrorCategoryStorage)),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, city)
			continue
		}
		res.Saved++
		observability.ReadingsSavedTotal.WithLabelValues(observability.CityLabel(city)).Inc()
		p.logger.Debug("reading saved",
			zap.String("city", city),
			zap.Float64("temperature", reading.Temperature),
			zap.String("condition", reading.Condition),
		)

		res.Alerts += p.evaluate(reading)
	}

	observability.PollCyclesTotal.Inc()
	observability.PollCycleDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("poll cycle complete",
		zap.Int("saved", res.Saved),
		zap.Strings("failed", res.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

// evaluate applies alert rules to a stored reading and returns the number of
// notifications dispatched.
func (p *Poller) evaluate(r models.Reading) int {
	sent := 0
	if r.Temperature > p.cfg.TemperatureThreshold {
		p.logger.Info("temperature threshold exceeded",
			zap.String("city", r.City),
			zap.Float64("temperature", r.Temperature),
			zap.Float64("threshold", p.cfg.TemperatureThreshold),
		)
		if p.notifier != nil {
			p.notifier.NotifyTemperature(r.City, r.Temperature)
			sent++
		}
	}

	if _, ok := p.watch[normalizeCondition(r.Condition)]; ok {
		observability.ConditionDetectionsTotal.WithLabelValues(r.Condition).Inc()
		p.logger.Info("watched condition detected",
			zap.String("city", r.City),
			zap.String("condition", r.Condition),
		)
		if p.cfg.EmailOnCondition && p.notifier != nil {
			p.notifier.NotifyCondition(r.City, r.Condition)
			sent++
		}
	}
	return sent
}

func (p *Poller) recordSuccess() {
	if p.outcomes != nil {
		p.outcomes.RecordSuccess()
	}
}

func (p *Poller) recordError() {
	if p.outcomes != nil {
		p.outcomes.RecordError()
	}
}

func normalizeCondition(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
