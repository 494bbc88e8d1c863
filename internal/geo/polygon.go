// Package geo provides the planar polygon operations used to place sensors
// and region centroids: validity, boundary-inclusive containment and
// centroids. Coordinates are treated as flat lon/lat.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/fer004/Sensores/internal/model"
)

// ErrInvalidGeometry is returned by Validate for boundaries that cannot be
// estimated over.
var ErrInvalidGeometry = errors.New("geo: invalid region geometry")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGeometry, fmt.Sprintf(format, args...))
}

// Validate checks that g is a non-empty polygon or multipolygon whose rings
// are closed, have at least four finite coordinates, and enclose a non-zero
// area. Self-intersection is not checked.
func Validate(g geom.T) error {
	switch b := g.(type) {
	case nil:
		return invalid("empty boundary")
	case *geom.Polygon:
		if b == nil || b.Empty() {
			return invalid("empty boundary")
		}
		return validatePolygon(b)
	case *geom.MultiPolygon:
		if b == nil || b.Empty() || b.NumPolygons() == 0 {
			return invalid("empty boundary")
		}
		for i := 0; i < b.NumPolygons(); i++ {
			if err := validatePolygon(b.Polygon(i)); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return invalid("unsupported geometry type %T", g)
	}
}

func validatePolygon(p *geom.Polygon) error {
	if p.NumLinearRings() == 0 {
		return invalid("polygon has no rings")
	}
	stride := p.Stride()
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		n := len(flat) / stride
		if n < 4 {
			return invalid("ring %d has %d coordinates, need at least 4", i, n)
		}
		for _, v := range flat {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid("ring %d has a non-finite coordinate", i)
			}
		}
		last := (n - 1) * stride
		if flat[0] != flat[last] || flat[1] != flat[last+1] {
			return invalid("ring %d is not closed", i)
		}
	}
	if RingArea(p.LinearRing(0).FlatCoords(), stride) == 0 {
		return invalid("exterior ring has zero area")
	}
	return nil
}

// RingArea returns the signed shoelace area of a flat ring. Counter-clockwise
// rings are positive.
func RingArea(flat []float64, stride int) float64 {
	n := len(flat) / stride
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x0, y0 := flat[i*stride], flat[i*stride+1]
		x1, y1 := flat[j*stride], flat[j*stride+1]
		sum += x0*y1 - x1*y0
	}
	return sum / 2
}

// Contains reports whether p lies inside g or on its boundary. Points inside
// a hole are excluded, points on a hole's ring are not.
func Contains(g geom.T, p model.Coordinate) bool {
	c := geom.Coord{p.Lon, p.Lat}
	switch b := g.(type) {
	case *geom.Polygon:
		return b != nil && polygonContains(b, c)
	case *geom.MultiPolygon:
		if b == nil {
			return false
		}
		for i := 0; i < b.NumPolygons(); i++ {
			if polygonContains(b.Polygon(i), c) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, c, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

// Centroid returns the area-weighted centroid of g. For concave shapes it may
// fall outside the boundary.
func Centroid(g geom.T) (model.Coordinate, error) {
	c, err := xy.Centroid(g)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("geo: centroid: %w", err)
	}
	out := model.Coordinate{Lon: c.X(), Lat: c.Y()}
	if !out.Finite() {
		return model.Coordinate{}, invalid("centroid is not finite")
	}
	return out, nil
}
