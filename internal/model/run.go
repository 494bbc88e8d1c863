package model

import "time"

// Run summarizes one estimation run as appended to the history log.
type Run struct {
	ID                 string    `json:"id"`
	StartedAt          time.Time `json:"started_at"`
	Pollutant          Pollutant `json:"pollutant"`
	Profile            string    `json:"profile"`
	Sensors            int       `json:"sensors"`
	Regions            int       `json:"regions"`
	Skipped            int       `json:"skipped"`
	Containment        int       `json:"containment"`
	Interpolated       int       `json:"interpolated"`
	NoData             int       `json:"no_data"`
	TriangulationError string    `json:"triangulation_error,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
}

// HistoryPoint is one region value taken from a past run.
type HistoryPoint struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Value     *float64  `json:"value"`
	Category  string    `json:"category"`
	Method    Method    `json:"method"`
}
