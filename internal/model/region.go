package model

import "github.com/twpayne/go-geom"

// Region is an administrative area whose boundary comes from the region
// source. Boundary is a *geom.Polygon or *geom.MultiPolygon; any other value
// (including nil) marks the region as unusable.
type Region struct {
	Name     string `json:"name"`
	Boundary geom.T `json:"-"`
}

// Method records which estimation tier produced a region's value.
type Method string

const (
	MethodContainment   Method = "containment"
	MethodInterpolation Method = "interpolation"
	MethodNone          Method = "none"
)

// RegionEstimate is the per-region output record. Value is nil exactly when
// no usable evidence exists for the region.
type RegionEstimate struct {
	// Index is the region's position in the input region list.
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Boundary geom.T   `json:"-"`
	Value    *float64 `json:"value"`
	Category string   `json:"category"`
	Method   Method   `json:"method"`
	Sensors  int      `json:"sensors"` // sensors contributing to Value
}

// SkippedRegion describes a region excluded from the output.
type SkippedRegion struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
