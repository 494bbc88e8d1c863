// Package inventory reads the table of detected sensors: index, position and,
// optionally, last known readings for offline runs.
package inventory

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/fer004/Sensores/internal/model"
)

// Sensor is one inventory row.
type Sensor struct {
	Index      int
	Name       string
	Coordinate model.Coordinate
	// Readings holds values from optional pm columns; empty when the file
	// has none.
	Readings map[model.Pollutant]float64
}

// Inventory is the parsed table in file order.
type Inventory struct {
	Sensors []Sensor
	// Dropped counts rows missing a usable sensor_index, latitude or longitude.
	Dropped int
}

// Samples converts rows with at least one reading into sensor samples.
func (inv *Inventory) Samples() []model.SensorSample {
	out := make([]model.SensorSample, 0, len(inv.Sensors))
	for _, s := range inv.Sensors {
		if len(s.Readings) == 0 {
			continue
		}
		m := make(map[model.Pollutant]float64, len(s.Readings))
		for k, v := range s.Readings {
			m[k] = v
		}
		out = append(out, model.SensorSample{Index: s.Index, Name: s.Name, Coordinate: s.Coordinate, Measurements: m})
	}
	return out
}

// Load reads an inventory from a .csv or .xlsx file.
func Load(path string) (*Inventory, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, "")
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "inventory: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	default:
		return nil, eris.Errorf("inventory: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a comma-separated inventory with a header row.
func ReadCSV(r io.Reader) (*Inventory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("inventory: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "inventory: read header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "inventory: read row")
		}
		inv.add(cols, rec)
	}
	inv.logSummary()
	return inv, nil
}

// ReadXLSX parses the named sheet (or the first one) of a workbook. The first
// row is the header.
func ReadXLSX(path, sheetName string) (*Inventory, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: open workbook %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		if sheet, ok = f.Sheet[sheetName]; !ok {
			return nil, eris.Errorf("inventory: sheet %q not found", sheetName)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("inventory: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("inventory: empty sheet")
	}

	cols, err := mapColumns(cellStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}
	inv := &Inventory{}
	for _, row := range sheet.Rows[1:] {
		inv.add(cols, cellStrings(row))
	}
	inv.logSummary()
	return inv, nil
}

func cellStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

type columns struct {
	index, lat, lon, name int
	readings              map[model.Pollutant]int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{index: -1, lat: -1, lon: -1, name: -1, readings: make(map[model.Pollutant]int)}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch key {
		case "sensor_index":
			cols.index = i
		case "latitude", "lat":
			cols.lat = i
		case "longitude", "lon", "lng":
			cols.lon = i
		case "name":
			cols.name = i
		default:
			if p, ok := model.ParsePollutant(key); ok {
				cols.readings[p] = i
			}
		}
	}
	var missing []string
	if cols.index < 0 {
		missing = append(missing, "sensor_index")
	}
	if cols.lat < 0 {
		missing = append(missing, "latitude")
	}
	if cols.lon < 0 {
		missing = append(missing, "longitude")
	}
	if len(missing) > 0 {
		return cols, eris.Errorf("inventory: missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (inv *Inventory) add(cols columns, rec []string) {
	cell := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	idx, ok := parseIndex(cell(cols.index))
	lat, latOK := parseFloat(cell(cols.lat))
	lon, lonOK := parseFloat(cell(cols.lon))
	if !ok || !latOK || !lonOK {
		inv.Dropped++
		return
	}

	s := Sensor{
		Index:      idx,
		Name:       cell(cols.name),
		Coordinate: model.Coordinate{Lon: lon, Lat: lat},
		Readings:   make(map[model.Pollutant]float64),
	}
	for p, i := range cols.readings {
		if v, ok := parseFloat(cell(i)); ok {
			s.Readings[p] = v
		}
	}
	inv.Sensors = append(inv.Sensors, s)
}

func (inv *Inventory) logSummary() {
	zap.L().Debug("inventory parsed",
		zap.Int("sensors", len(inv.Sensors)),
		zap.Int("dropped", inv.Dropped),
	)
}

// parseIndex accepts integers and integral floats such as "131075.0".
func parseIndex(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, ok := parseFloat(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
