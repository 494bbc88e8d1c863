// Package export renders sensor samples and region estimates as GeoJSON and
// ArcGIS feature sets.
package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/fer004/Sensores/internal/model"
)

// Region feature property names.
const (
	PropName     = "nombre"
	PropValue    = "valor_interpolado"
	PropCategory = "AQ"
	PropMethod   = "metodo"
	PropSensors  = "sensores"
)

// SensorsGeoJSON renders one Point feature per sample. Missing pollutant
// readings are null.
func SensorsGeoJSON(samples []model.SensorSample) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(samples))}
	for _, s := range samples {
		props := map[string]interface{}{
			"sensor_index": s.Index,
			"name":         s.Name,
			"timestamp":    s.Timestamp.UTC().Format(time.RFC3339),
		}
		for _, p := range model.Pollutants {
			if v, ok := s.Value(p); ok {
				props[string(p)] = v
			} else {
				props[string(p)] = nil
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{s.Coordinate.Lon, s.Coordinate.Lat}),
			Properties: props,
		})
	}
	return marshalIndent(&fc)
}

// RegionsGeoJSON renders one feature per estimate with the region boundary
// echoed back.
func RegionsGeoJSON(records []model.RegionEstimate) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	for _, r := range records {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   r.Boundary,
			Properties: regionProperties(r),
		})
	}
	return marshalIndent(&fc)
}

func regionProperties(r model.RegionEstimate) map[string]interface{} {
	var value interface{}
	if r.Value != nil {
		value = *r.Value
	}
	return map[string]interface{}{
		PropName:     r.Name,
		PropValue:    value,
		PropCategory: r.Category,
		PropMethod:   string(r.Method),
		PropSensors:  r.Sensors,
	}
}

func marshalIndent(fc *geojson.FeatureCollection) ([]byte, error) {
	raw, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal geojson")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, eris.Wrap(err, "export: indent geojson")
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile writes data atomically: a temp file in the same directory is
// renamed over path.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "export: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "export: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	return nil
}
