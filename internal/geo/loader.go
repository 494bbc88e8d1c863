package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/fer004/Sensores/internal/model"
)

// LoadOptions control how region names are read from the DBF table.
type LoadOptions struct {
	// NameField is the attribute holding the region name. Empty selects the
	// first field.
	NameField string
	// Encoding is an IANA charset name for DBF strings. Empty means UTF-8.
	Encoding string
}

// LoadRegions reads every shape of an ESRI shapefile as a region in file
// order. Shapes that are not polygons are returned with a nil boundary so the
// estimator can report them as skipped.
func LoadRegions(path string, opts LoadOptions) ([]model.Region, error) {
	log := zap.L().With(zap.String("component", "geo.loader"))

	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := 0
	if opts.NameField != "" {
		nameIdx = fieldIndex(reader, opts.NameField)
		if nameIdx < 0 {
			return nil, eris.Errorf("geo: field %q not found in %s", opts.NameField, path)
		}
	} else if len(reader.Fields()) == 0 {
		nameIdx = -1
	}

	var regions []model.Region
	for reader.Next() {
		n, shape := reader.Shape()

		name := ""
		if nameIdx >= 0 {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
			if dec != nil {
				if decoded, derr := dec.String(name); derr == nil {
					name = decoded
				}
			}
		}

		var boundary geom.T
		if poly, ok := shape.(*shp.Polygon); ok {
			boundary = PolygonToGeom(poly)
		} else {
			log.Warn("non-polygon shape kept without boundary",
				zap.Int("shape", n),
				zap.String("name", name),
				zap.String("type", shapeTypeName(shape)),
			)
		}
		regions = append(regions, model.Region{Name: name, Boundary: boundary})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geo: read shapefile %s", path)
	}

	log.Info("regions loaded", zap.String("path", path), zap.Int("regions", len(regions)))
	return regions, nil
}

func decoder(charset string) (*encoding.Decoder, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: unsupported DBF encoding %q", charset)
	}
	return enc.NewDecoder(), nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func shapeTypeName(s shp.Shape) string {
	switch s.(type) {
	case nil:
		return "null"
	case *shp.Point:
		return "point"
	case *shp.PolyLine:
		return "polyline"
	case *shp.MultiPoint:
		return "multipoint"
	default:
		return "other"
	}
}

// PolygonToGeom converts a shapefile polygon into go-geom. Shapefile outer
// rings are clockwise and holes counter-clockwise: each clockwise ring opens
// a new polygon and following counter-clockwise rings become its holes. A
// single polygon is returned as *geom.Polygon, several as *geom.MultiPolygon.
// Output rings follow the GeoJSON orientation (exterior counter-clockwise).
func PolygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys [][][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(p.Points)) {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		area := RingArea(flat, 2)
		outer := area <= 0 || len(polys) == 0
		if outer {
			if area < 0 {
				reverseRing(flat)
			}
			polys = append(polys, [][]float64{flat})
			continue
		}
		reverseRing(flat)
		last := len(polys) - 1
		polys[last] = append(polys[last], flat)
	}

	if len(polys) == 0 {
		return nil
	}
	if len(polys) == 1 {
		return newPolygon(polys[0])
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, rings := range polys {
		if err := mp.Push(newPolygon(rings)); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Error(err))
		}
	}
	return mp
}

func newPolygon(rings [][]float64) *geom.Polygon {
	flat := make([]float64, 0)
	ends := make([]int, 0, len(rings))
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// reverseRing flips ring orientation in place, keeping it closed.
func reverseRing(flat []float64) {
	n := len(flat) / 2
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		flat[2*i], flat[2*j] = flat[2*j], flat[2*i]
		flat[2*i+1], flat[2*j+1] = flat[2*j+1], flat[2*i+1]
	}
}
