package models

import "time"

// Reading is one observation for one city. Written once per city per poll, never updated.
type Reading struct {
	City        string    `json:"city"`
	Condition   string    `json:"condition"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	ObservedAt  time.Time `json:"observedAt"`
}

// DailySummary aggregates the readings of one calendar day. Date is local midnight
// of that day; there is at most one summary per Date.
type DailySummary struct {
	Date              time.Time `json:"date"`
	AvgTemp           float64   `json:"avgTemp"`
	MaxTemp           float64   `json:"maxTemp"`
	MinTemp           float64   `json:"minTemp"`
	DominantCondition string    `json:"dominantCondition"`
	CreatedAt         time.Time `json:"createdAt"`
}
