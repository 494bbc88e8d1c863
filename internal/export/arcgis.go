package export

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/fer004/Sensores/internal/geo"
	"github.com/fer004/Sensores/internal/model"
)

// FeatureSet is an ArcGIS REST feature set with polygon geometry.
type FeatureSet struct {
	DisplayFieldName string           `json:"displayFieldName"`
	GeometryType     string           `json:"geometryType"`
	SpatialReference SpatialReference `json:"spatialReference"`
	Fields           []Field          `json:"fields"`
	Features         []Feature        `json:"features"`
}

// SpatialReference identifies the coordinate system by WKID.
type SpatialReference struct {
	WKID int `json:"wkid"`
}

// Field describes one attribute column.
type Field struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Alias  string `json:"alias"`
	Length int    `json:"length,omitempty"`
}

// Feature is one ArcGIS feature.
type Feature struct {
	Attributes Attributes `json:"attributes"`
	Geometry   Polygon    `json:"geometry"`
}

// Attributes are the region attributes in a fixed order.
type Attributes struct {
	ObjectID int      `json:"OBJECTID"`
	Nombre   string   `json:"nombre"`
	Valor    *float64 `json:"valor_interpolado"`
	AQ       string   `json:"AQ"`
	Metodo   string   `json:"metodo"`
	Sensores int      `json:"sensores"`
}

// Polygon holds ArcGIS rings: outer rings clockwise, holes counter-clockwise.
type Polygon struct {
	Rings [][][2]float64 `json:"rings"`
}

var arcgisFields = []Field{
	{Name: "OBJECTID", Type: "esriFieldTypeOID", Alias: "OBJECTID"},
	{Name: PropName, Type: "esriFieldTypeString", Alias: "Nombre", Length: 254},
	{Name: PropValue, Type: "esriFieldTypeDouble", Alias: "Valor interpolado"},
	{Name: PropCategory, Type: "esriFieldTypeString", Alias: "Calidad del aire", Length: 64},
	{Name: PropMethod, Type: "esriFieldTypeString", Alias: "Metodo", Length: 16},
	{Name: PropSensors, Type: "esriFieldTypeInteger", Alias: "Sensores"},
}

// ArcGISFeatureSet builds the feature set for a run's records in WGS84.
func ArcGISFeatureSet(records []model.RegionEstimate) FeatureSet {
	fs := FeatureSet{
		DisplayFieldName: PropName,
		GeometryType:     "esriGeometryPolygon",
		SpatialReference: SpatialReference{WKID: 4326},
		Fields:           arcgisFields,
		Features:         make([]Feature, 0, len(records)),
	}
	for i, r := range records {
		fs.Features = append(fs.Features, Feature{
			Attributes: Attributes{
				ObjectID: i + 1,
				Nombre:   r.Name,
				Valor:    r.Value,
				AQ:       r.Category,
				Metodo:   string(r.Method),
				Sensores: r.Sensors,
			},
			Geometry: Polygon{Rings: rings(r.Boundary)},
		})
	}
	return fs
}

// ArcGISJSON renders the feature set as indented JSON.
func ArcGISJSON(records []model.RegionEstimate) ([]byte, error) {
	data, err := json.MarshalIndent(ArcGISFeatureSet(records), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal arcgis feature set")
	}
	return append(data, '\n'), nil
}

func rings(g geom.T) [][][2]float64 {
	var polys []*geom.Polygon
	switch b := g.(type) {
	case *geom.Polygon:
		polys = append(polys, b)
	case *geom.MultiPolygon:
		for i := 0; i < b.NumPolygons(); i++ {
			polys = append(polys, b.Polygon(i))
		}
	}

	out := [][][2]float64{}
	for _, p := range polys {
		stride := p.Stride()
		for i := 0; i < p.NumLinearRings(); i++ {
			flat := p.LinearRing(i).FlatCoords()
			ccw := geo.RingArea(flat, stride) > 0
			// Exterior rings must come out clockwise, holes counter-clockwise.
			reverse := (i == 0) == ccw
			n := len(flat) / stride
			ring := make([][2]float64, n)
			for j := 0; j < n; j++ {
				k := j
				if reverse {
					k = n - 1 - j
				}
				ring[j] = [2]float64{flat[k*stride], flat[k*stride+1]}
			}
			out = append(out, ring)
		}
	}
	return out
}
