package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/weather-summary-service/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id BIGSERIAL PRIMARY KEY,
	city TEXT NOT NULL,
	condition TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	feels_like DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_observed_at ON readings(observed_at);

CREATE TABLE IF NOT EXISTS daily_summaries (
	date TIMESTAMPTZ PRIMARY KEY,
	avg_temp DOUBLE PRECISION NOT NULL,
	max_temp DOUBLE PRECISION NOT NULL,
	min_temp DOUBLE PRECISION NOT NULL,
	dominant_condition TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists readings and summaries through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects with connString and applies the schema.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveReading(ctx context.Context, r models.Reading) error {
	const stmt = `INSERT INTO readings (city, condition, temperature, feels_like, observed_at)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err := s.pool.Exec(ctx, stmt, r.City, r.Condition, r.Temperature, r.FeelsLike, r.ObservedAt); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadingsBetween(ctx context.Context, from, to time.Time) ([]models.Reading, error) {
	const query = `SELECT city, condition, temperature, feels_like, observed_at
        FROM readings WHERE observed_at >= $1 AND observed_at < $2
        ORDER BY observed_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Reading, error) {
		var r models.Reading
		err := row.Scan(&r.City, &r.Condition, &r.Temperature, &r.FeelsLike, &r.ObservedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, sum models.DailySummary) error {
	const stmt = `INSERT INTO daily_summaries (date, avg_temp, max_temp, min_temp, dominant_condition, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (date) DO UPDATE SET
            avg_temp = EXCLUDED.avg_temp,
            max_temp = EXCLUDED.max_temp,
            min_temp = EXCLUDED.min_temp,
            dominant_condition = EXCLUDED.dominant_condition,
            created_at = EXCLUDED.created_at`

	_, err := s.pool.Exec(ctx, stmt,
		sum.Date,
		sum.AvgTemp,
		sum.MaxTemp,
		sum.MinTemp,
		sum.DominantCondition,
		sum.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	const query = `SELECT date, avg_temp, max_temp, min_temp, dominant_condition, created_at
        FROM daily_summaries ORDER BY date DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DailySummary, error) {
		var sum models.DailySummary
		err := row.Scan(&sum.Date, &sum.AvgTemp, &sum.MaxTemp, &sum.MinTemp, &sum.DominantCondition, &sum.CreatedAt)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan summaries: %w", err)
	}
	if out == nil {
		out = []models.DailySummary{}
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
