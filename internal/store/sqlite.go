package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-summary-service/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	city TEXT NOT NULL,
	condition TEXT NOT NULL,
	temperature REAL NOT NULL,
	feels_like REAL NOT NULL,
	observed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_observed_at ON readings(observed_at);

CREATE TABLE IF NOT EXISTS daily_summaries (
	date INTEGER PRIMARY KEY,
	avg_temp REAL NOT NULL,
	max_temp REAL NOT NULL,
	min_temp REAL NOT NULL,
	dominant_condition TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLiteStore persists readings and summaries in a single SQLite file.
// Timestamps are stored as Unix nanoseconds so range filters compare numerically
// regardless of the zone a caller used.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "weather.db"
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between the
	// poller, the aggregator and request handlers.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) SaveReading(ctx context.Context, r models.Reading) error {
	const query = `INSERT INTO readings (city, condition, temperature, feels_like, observed_at)
	VALUES (?, ?, ?, ?, ?)`
	_, err := s.conn.ExecContext(ctx, query, r.City, r.Condition, r.Temperature, r.FeelsLike, r.ObservedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadingsBetween(ctx context.Context, from, to time.Time) ([]models.Reading, error) {
	const query = `SELECT city, condition, temperature, feels_like, observed_at
	FROM readings WHERE observed_at >= ? AND observed_at < ?
	ORDER BY observed_at ASC, id ASC`

	rows, err := s.conn.QueryContext(ctx, query, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		var r models.Reading
		var observed int64
		if err := rows.Scan(&r.City, &r.Condition, &r.Temperature, &r.FeelsLike, &observed); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.ObservedAt = time.Unix(0, observed)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpsertSummary(ctx context.Context, sum models.DailySummary) error {
	const query = `INSERT INTO daily_summaries (date, avg_temp, max_temp, min_temp, dominant_condition, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		avg_temp = excluded.avg_temp,
		max_temp = excluded.max_temp,
		min_temp = excluded.min_temp,
		dominant_condition = excluded.dominant_condition,
		created_at = excluded.created_at`

	_, err := s.conn.ExecContext(ctx, query,
		sum.Date.UnixNano(),
		sum.AvgTemp,
		sum.MaxTemp,
		sum.MinTemp,
		sum.DominantCondition,
		sum.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	const query = `SELECT date, avg_temp, max_temp, min_temp, dominant_condition, created_at
	FROM daily_summaries ORDER BY date DESC`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := []models.DailySummary{}
	for rows.Next() {
		var sum models.DailySummary
		var date, created int64
		if err := rows.Scan(&date, &sum.AvgTemp, &sum.MaxTemp, &sum.MinTemp, &sum.DominantCondition, &created); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Date = time.Unix(0, date)
		sum.CreatedAt = time.Unix(0, created)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
