package mesh

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fer004/Sensores/internal/model"
)

func pt(lon, lat float64) model.Coordinate {
	return model.Coordinate{Lon: lon, Lat: lat}
}

func unitSquareWithInterior() []model.Coordinate {
	return []model.Coordinate{
		pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 1),
		pt(0.3, 0.4), pt(0.7, 0.2), pt(0.55, 0.75), pt(0.2, 0.8),
	}
}

func signedArea(a, b, c model.Coordinate) float64 {
	return orient(a, b, c) / 2
}

// inCircle is positive when p lies strictly inside the circumcircle of the
// counter-clockwise simplex s.
func inCircle(verts []model.Coordinate, s Simplex, p model.Coordinate) float64 {
	a, b, c := verts[s[0]], verts[s[1]], verts[s[2]]
	adx, ady := a.Lon-p.Lon, a.Lat-p.Lat
	bdx, bdy := b.Lon-p.Lon, b.Lat-p.Lat
	cdx, cdy := c.Lon-p.Lon, c.Lat-p.Lat
	ad := adx*adx + ady*ady
	bd := bdx*bdx + bdy*bdy
	cd := cdx*cdx + cdy*cdy
	return adx*(bdy*cd-bd*cdy) - ady*(bdx*cd-bd*cdx) + ad*(bdx*cdy-bdy*cdx)
}

// hullArea returns the area of the convex hull of pts (monotone chain).
func hullArea(pts []model.Coordinate) float64 {
	ps := append([]model.Coordinate(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Lon != ps[j].Lon {
			return ps[i].Lon < ps[j].Lon
		}
		return ps[i].Lat < ps[j].Lat
	})
	var hull []model.Coordinate
	for pass := 0; pass < 2; pass++ {
		start := len(hull)
		for _, p := range ps {
			for len(hull) >= start+2 && orient(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
				hull = hull[:len(hull)-1]
			}
			hull = append(hull, p)
		}
		hull = hull[:len(hull)-1]
		for i, j := 0, len(ps)-1; i < j; i, j = i+1, j-1 {
			ps[i], ps[j] = ps[j], ps[i]
		}
	}
	var a float64
	for i := range hull {
		j := (i + 1) % len(hull)
		a += hull[i].Lon*hull[j].Lat - hull[j].Lon*hull[i].Lat
	}
	return a / 2
}

// assertCoversHull checks that the mesh uses every point, has no inverted
// simplex and tiles exactly the convex hull.
func assertCoversHull(t *testing.T, pts []model.Coordinate, m *Mesh) {
	t.Helper()
	var total float64
	used := make(map[int]bool)
	for i, s := range m.Simplices() {
		for _, idx := range s {
			used[idx] = true
		}
		v := m.Vertices(i)
		a := signedArea(v[0], v[1], v[2])
		assert.GreaterOrEqual(t, a, 0.0, "simplex %d is inverted", i)
		total += a
	}
	assert.Len(t, used, len(pts))
	want := hullArea(pts)
	assert.InDelta(t, want, total, 1e-9*want)
}

func TestTriangulate_TooFewPoints(t *testing.T) {
	_, err := Triangulate(nil)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = Triangulate([]model.Coordinate{pt(0, 0), pt(1, 1)})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestTriangulate_CoincidentPointsCountOnce(t *testing.T) {
	_, err := Triangulate([]model.Coordinate{pt(2, 2), pt(2, 2), pt(3, 1)})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestTriangulate_Collinear(t *testing.T) {
	_, err := Triangulate([]model.Coordinate{pt(0, 0), pt(1, 1), pt(2, 2), pt(5, 5)})
	assert.ErrorIs(t, err, ErrCollinear)
}

func TestTriangulate_NonFinite(t *testing.T) {
	_, err := Triangulate([]model.Coordinate{pt(0, 0), pt(1, 0), pt(math.NaN(), 1)})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestTriangulate_SingleTriangle(t *testing.T) {
	m, err := Triangulate([]model.Coordinate{pt(0, 0), pt(0, 1), pt(1, 0)})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	v := m.Vertices(0)
	assert.Greater(t, signedArea(v[0], v[1], v[2]), 0.0, "simplex must be counter-clockwise")
}

func TestTriangulate_CoversHullAndIsDelaunay(t *testing.T) {
	pts := unitSquareWithInterior()
	m, err := Triangulate(pts)
	require.NoError(t, err)

	// n points, h of them on the hull: 2n - h - 2 triangles.
	assert.Equal(t, 2*len(pts)-4-2, m.Len())

	var total float64
	used := make(map[int]bool)
	for i, s := range m.Simplices() {
		for _, idx := range s {
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, len(pts))
			used[idx] = true
		}
		v := m.Vertices(i)
		a := signedArea(v[0], v[1], v[2])
		assert.Greater(t, a, 0.0)
		total += a

		for j, p := range pts {
			if j == s[0] || j == s[1] || j == s[2] {
				continue
			}
			assert.LessOrEqual(t, inCircle(pts, s, p), 1e-9, "point %d inside circumcircle of simplex %d", j, i)
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Len(t, used, len(pts))
}

func TestTriangulate_DuplicateLeftOut(t *testing.T) {
	pts := []model.Coordinate{pt(0, 0), pt(4, 0), pt(0, 4), pt(4, 0), pt(4, 4)}
	m, err := Triangulate(pts)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	for _, s := range m.Simplices() {
		assert.NotContains(t, s[:], 3)
	}
}

func TestTriangulate_RealWorldScale(t *testing.T) {
	// Sensors spread over a few kilometres of a city.
	pts := []model.Coordinate{
		pt(-106.4245, 31.6904), pt(-106.4012, 31.7121), pt(-106.4530, 31.7302),
		pt(-106.3861, 31.6588), pt(-106.4377, 31.6711), pt(-106.4108, 31.6925),
	}
	m, err := Triangulate(pts)
	require.NoError(t, err)
	assert.Positive(t, m.Len())
	for i := 0; i < m.Len(); i++ {
		v := m.Vertices(i)
		assert.Greater(t, signedArea(v[0], v[1], v[2]), 0.0)
	}
}

func TestTriangulate_ElongatedSet(t *testing.T) {
	pts := []model.Coordinate{pt(157, 0), pt(631, 1), pt(923, 1), pt(863, 2), pt(126, 1)}
	m, err := Triangulate(pts)
	require.NoError(t, err)

	// Four hull points, one interior point.
	assert.Equal(t, 2*len(pts)-4-2, m.Len())
	assert.InDelta(t, 797.0, hullArea(pts), 1e-9)
	assertCoversHull(t, pts, m)
	assert.NotEqual(t, NotFound, m.Locate(pt(700, 0.8)))
}

func TestTriangulate_ThinStrips(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 100; run++ {
		pts := make([]model.Coordinate, 30)
		for i := range pts {
			pts[i] = pt(rng.Float64()*1000, rng.Float64()*0.01)
		}
		m, err := Triangulate(pts)
		require.NoError(t, err, "run %d", run)
		assertCoversHull(t, pts, m)
	}
}

func TestTriangulate_Deterministic(t *testing.T) {
	pts := unitSquareWithInterior()
	a, err := Triangulate(pts)
	require.NoError(t, err)
	b, err := Triangulate(pts)
	require.NoError(t, err)
	assert.Equal(t, a.Simplices(), b.Simplices())
}

func TestTriangulate_DoesNotAliasInput(t *testing.T) {
	pts := []model.Coordinate{pt(0, 0), pt(1, 0), pt(0, 1)}
	m, err := Triangulate(pts)
	require.NoError(t, err)
	pts[0] = pt(9, 9)
	assert.Equal(t, pt(0, 0), m.Point(0))
}

func TestLocate(t *testing.T) {
	m, err := Triangulate(unitSquareWithInterior())
	require.NoError(t, err)

	tests := []struct {
		name  string
		p     model.Coordinate
		found bool
	}{
		{"interior", pt(0.5, 0.5), true},
		{"vertex", pt(0.3, 0.4), true},
		{"hull edge", pt(0.5, 0), true},
		{"hull corner", pt(1, 1), true},
		{"outside", pt(1.5, 0.5), false},
		{"far outside", pt(-10, -10), false},
		{"nan", pt(math.NaN(), 0.5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := m.Locate(tt.p)
			if !tt.found {
				assert.Equal(t, NotFound, idx)
				return
			}
			require.NotEqual(t, NotFound, idx)
			v := m.Vertices(idx)
			assert.True(t, inTriangle(v[0], v[1], v[2], tt.p))
		})
	}
}

func TestLocate_NilMesh(t *testing.T) {
	var m *Mesh
	assert.Equal(t, NotFound, m.Locate(pt(0, 0)))
	assert.Equal(t, 0, m.Len())
}
