package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/weather-summary-service/internal/models"
)

// ReadingStore is the append-only collection of raw observations.
type ReadingStore interface {
	SaveReading(ctx context.Context, r models.Reading) error
	// ReadingsBetween returns readings with from <= observedAt < to, oldest first.
	ReadingsBetween(ctx context.Context, from, to time.Time) ([]models.Reading, error)
}

// SummaryStore holds one summary per calendar day.
type SummaryStore interface {
	// UpsertSummary inserts the summary or replaces the existing row for the same Date.
	UpsertSummary(ctx context.Context, s models.DailySummary) error
	// ListSummaries returns every summary ordered by Date descending.
	ListSummaries(ctx context.Context) ([]models.DailySummary, error)
}

// Store is the persistence layer shared by the poller, aggregator and HTTP API.
type Store interface {
	ReadingStore
	SummaryStore
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend named by backend ("sqlite" or "postgres").
// dsn is a file path for sqlite and a connection string for postgres.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return NewSQLiteStore(ctx, dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}

// InLocation wraps s so times read back are expressed in loc. Backends decode
// timestamps in the process zone; the aggregator keys days by midnight in loc.
// A nil loc returns s unchanged.
func InLocation(s Store, loc *time.Location) Store {
	if loc == nil {
		return s
	}
	return &localizedStore{Store: s, loc: loc}
}

type localizedStore struct {
	Store
	loc *time.Location
}

func (l *localizedStore) ReadingsBetween(ctx context.Context, from, to time.Time) ([]models.Reading, error) {
	readings, err := l.Store.ReadingsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for i := range readings {
		readings[i].ObservedAt = readings[i].ObservedAt.In(l.loc)
	}
	return readings, nil
}

func (l *localizedStore) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	summaries, err := l.Store.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Date = summaries[i].Date.In(l.loc)
		summaries[i].CreatedAt = summaries[i].CreatedAt.In(l.loc)
	}
	return summaries, nil
}
