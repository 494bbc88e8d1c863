package model

import (
	"math"
	"strings"
	"time"
)

// Pollutant identifies a particulate fraction reported by a sensor.
type Pollutant string

const (
	PM1_0 Pollutant = "pm1_0"
	PM2_5 Pollutant = "pm2_5"
)

// Pollutants lists every supported pollutant in display order.
var Pollutants = []Pollutant{PM1_0, PM2_5}

// ParsePollutant accepts the canonical names as well as the PurpleAir field
// spellings ("pm2.5", "PM2.5").
func ParsePollutant(s string) (Pollutant, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pm1_0", "pm1.0", "pm1":
		return PM1_0, true
	case "pm2_5", "pm2.5", "pm25":
		return PM2_5, true
	default:
		return "", false
	}
}

// APIField returns the PurpleAir field name for the pollutant.
func (p Pollutant) APIField() string {
	return strings.Replace(string(p), "_", ".", 1)
}

// Coordinate is a planar longitude/latitude pair. All geometry in this
// project treats it as flat Euclidean space.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Finite reports whether both components are finite numbers.
func (c Coordinate) Finite() bool {
	return isFinite(c.Lon) && isFinite(c.Lat)
}

// SensorSample is one sensor's location and its latest measurements.
// Samples are read-only once collected.
type SensorSample struct {
	Index        int                   `json:"sensor_index"`
	Name         string                `json:"name"`
	Coordinate   Coordinate            `json:"coordinate"`
	Measurements map[Pollutant]float64 `json:"measurements"`
	Timestamp    time.Time             `json:"timestamp"`
}

// Value returns the measurement for p when it is present and finite.
func (s SensorSample) Value(p Pollutant) (float64, bool) {
	v, ok := s.Measurements[p]
	if !ok || !isFinite(v) {
		return 0, false
	}
	return v, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
