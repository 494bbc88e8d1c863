package mesh

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"

	"github.com/fer004/Sensores/internal/model"
)

var (
	// ErrTooFewPoints is returned when fewer than three distinct points are supplied.
	ErrTooFewPoints = errors.New("mesh: at least 3 distinct points are required")
	// ErrCollinear is returned when every point lies on a single line.
	ErrCollinear = errors.New("mesh: all points are collinear")
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("mesh: non-finite coordinate")
)

const (
	duplicateTolerance = 1e-12
	collinearTolerance = 1e-10
	orientTolerance    = 1e-14
)

// Triangulate builds the Delaunay triangulation of coords. Points that
// coincide with an earlier point are left out of the mesh. The result depends
// only on the input order, so identical inputs give identical meshes.
//
// Construction runs in a normalized frame; simplices are stored
// counter-clockwise with indices into coords.
func Triangulate(coords []model.Coordinate) (*Mesh, error) {
	pts := make([]model.Coordinate, len(coords))
	copy(pts, coords)
	for _, p := range pts {
		if !p.Finite() {
			return nil, ErrNonFinite
		}
	}

	norm := normalize(pts)
	use := distinct(norm)
	if len(use) < 3 {
		return nil, ErrTooFewPoints
	}
	if collinear(norm, use) {
		return nil, ErrCollinear
	}

	in := make([]delaunay.Point, len(use))
	for k, i := range use {
		in[k] = delaunay.Point{X: norm[i].Lon, Y: norm[i].Lat}
	}
	tri, err := delaunay.Triangulate(in)
	if err != nil {
		return nil, ErrCollinear
	}

	tris := make([]Simplex, 0, len(tri.Triangles)/3)
	for t := 0; t+2 < len(tri.Triangles); t += 3 {
		s := Simplex{use[tri.Triangles[t]], use[tri.Triangles[t+1]], use[tri.Triangles[t+2]]}
		if orient(norm[s[0]], norm[s[1]], norm[s[2]]) < 0 {
			s[1], s[2] = s[2], s[1]
		}
		tris = append(tris, s)
	}
	if len(tris) == 0 {
		return nil, ErrCollinear
	}

	return &Mesh{points: pts, simplices: tris}, nil
}

// normalize maps points into the unit box anchored at their minimum corner.
func normalize(pts []model.Coordinate) []model.Coordinate {
	out := make([]model.Coordinate, len(pts))
	if len(pts) == 0 {
		return out
	}
	minX, minY := pts[0].Lon, pts[0].Lat
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.Lon)
		minY = math.Min(minY, p.Lat)
		maxX = math.Max(maxX, p.Lon)
		maxY = math.Max(maxY, p.Lat)
	}
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	for i, p := range pts {
		out[i] = model.Coordinate{Lon: (p.Lon - minX) / span, Lat: (p.Lat - minY) / span}
	}
	return out
}

// distinct returns the indices of points that do not coincide with an
// earlier point.
func distinct(pts []model.Coordinate) []int {
	var use []int
	for i, p := range pts {
		dup := false
		for _, j := range use {
			if math.Abs(p.Lon-pts[j].Lon) <= duplicateTolerance && math.Abs(p.Lat-pts[j].Lat) <= duplicateTolerance {
				dup = true
				break
			}
		}
		if !dup {
			use = append(use, i)
		}
	}
	return use
}

func collinear(pts []model.Coordinate, use []int) bool {
	a := pts[use[0]]
	far, best := -1, 0.0
	for _, i := range use[1:] {
		if d := dist2(a, pts[i]); d > best {
			far, best = i, d
		}
	}
	if far < 0 {
		return true
	}
	b := pts[far]
	for _, i := range use {
		if math.Abs(orient(a, b, pts[i])) > collinearTolerance*best {
			return false
		}
	}
	return true
}

// orient is twice the signed area of abc; positive when counter-clockwise.
func orient(a, b, c model.Coordinate) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

// inTriangle reports whether p lies in the counter-clockwise triangle abc,
// boundary included. Each edge test is scaled by the edge length so the
// tolerance is a relative distance.
func inTriangle(a, b, c, p model.Coordinate) bool {
	for _, e := range [3][2]model.Coordinate{{a, b}, {b, c}, {c, a}} {
		if orient(e[0], e[1], p) < -orientTolerance*dist2(e[0], e[1]) {
			return false
		}
	}
	return true
}

func dist2(a, b model.Coordinate) float64 {
	dx, dy := b.Lon-a.Lon, b.Lat-a.Lat
	return dx*dx + dy*dy
}
