package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// cwSquare returns a clockwise (shapefile outer) square ring.
func cwSquare(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
}

// ccwSquare returns a counter-clockwise (shapefile hole) square ring.
func ccwSquare(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
}

func shpPolygon(parts ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

// renameDBF moves the attribute table go-shp's writer creates as "<base>dbf"
// to "<base>.dbf", where readers look for it.
func renameDBF(t *testing.T, path string) {
	t.Helper()
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func writeShapefile(t *testing.T, names []string, polys []*shp.Polygon) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colonias.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("CVE", 8),
		shp.StringField("NOMBRE", 40),
	}))
	for i, p := range polys {
		idx := w.Write(p)
		require.NoError(t, w.WriteAttribute(int(idx), 0, i+1))
		require.NoError(t, w.WriteAttribute(int(idx), 1, names[i]))
	}
	w.Close()
	renameDBF(t, path)
	return path
}

func TestPolygonToGeom_SingleRing(t *testing.T) {
	g := PolygonToGeom(shpPolygon(cwSquare(0, 0, 1, 1)))
	p, ok := g.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 1, p.NumLinearRings())
	assert.Greater(t, RingArea(p.LinearRing(0).FlatCoords(), 2), 0.0, "exterior ring is counter-clockwise")
	assert.NoError(t, Validate(g))
}

func TestPolygonToGeom_CounterClockwiseFirstRingKept(t *testing.T) {
	g := PolygonToGeom(shpPolygon(ccwSquare(0, 0, 1, 1)))
	p, ok := g.(*geom.Polygon)
	require.True(t, ok)
	assert.Greater(t, RingArea(p.LinearRing(0).FlatCoords(), 2), 0.0)
}

func TestPolygonToGeom_Hole(t *testing.T) {
	g := PolygonToGeom(shpPolygon(cwSquare(0, 0, 4, 4), ccwSquare(1, 1, 2, 2)))
	p, ok := g.(*geom.Polygon)
	require.True(t, ok)
	require.Equal(t, 2, p.NumLinearRings())
	assert.Less(t, RingArea(p.LinearRing(1).FlatCoords(), 2), 0.0, "hole is clockwise")
	assert.False(t, Contains(g, at(1.5, 1.5)))
	assert.True(t, Contains(g, at(3, 3)))
}

func TestPolygonToGeom_MultiPart(t *testing.T) {
	g := PolygonToGeom(shpPolygon(cwSquare(0, 0, 1, 1), cwSquare(5, 5, 6, 6)))
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
	for i := 0; i < mp.NumPolygons(); i++ {
		assert.Greater(t, RingArea(mp.Polygon(i).LinearRing(0).FlatCoords(), 2), 0.0, "part %d exterior", i)
	}
	assert.True(t, Contains(g, at(5.5, 5.5)))
	assert.NoError(t, Validate(g))
}

func TestPolygonToGeom_Empty(t *testing.T) {
	assert.Nil(t, PolygonToGeom(nil))
	assert.Nil(t, PolygonToGeom(&shp.Polygon{}))
}

func TestLoadRegions(t *testing.T) {
	path := writeShapefile(t,
		[]string{"Centro", "Bellavista"},
		[]*shp.Polygon{
			shpPolygon(cwSquare(-106.49, 31.73, -106.47, 31.75)),
			shpPolygon(cwSquare(-106.47, 31.73, -106.45, 31.75)),
		},
	)

	regions, err := LoadRegions(path, LoadOptions{NameField: "nombre"})
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "Centro", regions[0].Name)
	assert.Equal(t, "Bellavista", regions[1].Name)
	for _, r := range regions {
		assert.NoError(t, Validate(r.Boundary))
	}
	assert.True(t, Contains(regions[0].Boundary, at(-106.48, 31.74)))
}

func TestLoadRegions_DefaultFirstField(t *testing.T) {
	path := writeShapefile(t, []string{"Centro"}, []*shp.Polygon{shpPolygon(cwSquare(0, 0, 1, 1))})

	regions, err := LoadRegions(path, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "1", regions[0].Name)
}

func TestLoadRegions_Encoding(t *testing.T) {
	path := writeShapefile(t, []string{"Col\xf3n"}, []*shp.Polygon{shpPolygon(cwSquare(0, 0, 1, 1))})

	regions, err := LoadRegions(path, LoadOptions{NameField: "NOMBRE", Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Colón", regions[0].Name)
}

func TestLoadRegions_UnknownEncoding(t *testing.T) {
	path := writeShapefile(t, []string{"Centro"}, []*shp.Polygon{shpPolygon(cwSquare(0, 0, 1, 1))})

	_, err := LoadRegions(path, LoadOptions{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DBF encoding")
}

func TestLoadRegions_MissingField(t *testing.T) {
	path := writeShapefile(t, []string{"Centro"}, []*shp.Polygon{shpPolygon(cwSquare(0, 0, 1, 1))})

	_, err := LoadRegions(path, LoadOptions{NameField: "COLONIA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COLONIA")
}

func TestLoadRegions_NonPolygonKeptWithoutBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "puntos.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NOMBRE", 20)}))
	idx := w.Write(&shp.Point{X: 1, Y: 1})
	require.NoError(t, w.WriteAttribute(int(idx), 0, "Punto"))
	w.Close()
	renameDBF(t, path)

	regions, err := LoadRegions(path, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Punto", regions[0].Name)
	assert.Nil(t, regions[0].Boundary)
	assert.ErrorIs(t, Validate(regions[0].Boundary), ErrInvalidGeometry)
}

func TestLoadRegions_MissingFile(t *testing.T) {
	_, err := LoadRegions(filepath.Join(t.TempDir(), "nope.shp"), LoadOptions{})
	require.Error(t, err)
}
