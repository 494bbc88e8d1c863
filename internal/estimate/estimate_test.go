package estimate

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/fer004/Sensores/internal/classify"
	"github.com/fer004/Sensores/internal/mesh"
	"github.com/fer004/Sensores/internal/model"
)

func sample(idx int, lon, lat, pm25 float64) model.SensorSample {
	return model.SensorSample{
		Index:        idx,
		Coordinate:   model.Coordinate{Lon: lon, Lat: lat},
		Measurements: map[model.Pollutant]float64{model.PM2_5: pm25},
	}
}

func box(name string, x0, y0, x1, y1 float64) model.Region {
	flat := []float64{x0, y0, x1, y0, x1, y1, x0, y1, x0, y0}
	return model.Region{Name: name, Boundary: geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})}
}

func epaOptions() Options {
	return Options{Pollutant: model.PM2_5, Profile: classify.EPA(), RoundingPrecision: 2}
}

func affineSensors() []model.SensorSample {
	return []model.SensorSample{
		sample(1, 0, 0, 10),
		sample(2, 1, 0, 20),
		sample(3, 0, 1, 30),
	}
}

func TestRun_Scenario1_Interpolated(t *testing.T) {
	res, err := Run(affineSensors(), []model.Region{box("Centro", 0.2, 0.2, 0.4, 0.4)}, epaOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	require.NotNil(t, rec.Value)
	assert.InDelta(t, 19.0, *rec.Value, 1e-9)
	assert.Equal(t, "Moderado", rec.Category)
	assert.Equal(t, model.MethodInterpolation, rec.Method)
	assert.Equal(t, 1, res.Stats.Interpolated)
	assert.Equal(t, 0, res.Stats.Extrapolated)
}

func TestRun_CentroidOnHullEdge(t *testing.T) {
	// Centroid (0.5, 0.5) sits on the hypotenuse: one weight is zero.
	res, err := Run(affineSensors(), []model.Region{box("Orilla", 0.4, 0.4, 0.6, 0.6)}, epaOptions())
	require.NoError(t, err)

	rec := res.Records[0]
	require.NotNil(t, rec.Value)
	assert.InDelta(t, 25.0, *rec.Value, 1e-9)
	assert.Equal(t, model.MethodInterpolation, rec.Method)
	assert.Equal(t, 0, res.Stats.Extrapolated)
}

func TestRun_Scenario2_ContainmentMean(t *testing.T) {
	samples := append(affineSensors(),
		sample(4, 5.2, 5.2, 5),
		sample(5, 5.8, 5.8, 15),
	)
	res, err := Run(samples, []model.Region{box("Bellavista", 5, 5, 6, 6)}, epaOptions())
	require.NoError(t, err)

	rec := res.Records[0]
	require.NotNil(t, rec.Value)
	assert.Equal(t, 10.0, *rec.Value)
	assert.Equal(t, "Bueno", rec.Category)
	assert.Equal(t, model.MethodContainment, rec.Method)
	assert.Equal(t, 2, rec.Sensors)
}

func TestRun_Scenario3_TriangulationFailure(t *testing.T) {
	samples := []model.SensorSample{sample(1, 0, 0, 8), sample(2, 3, 3, 12)}
	regions := []model.Region{
		box("Vacia", 1, 1, 2, 2),
		box("Con sensor", -0.5, -0.5, 0.5, 0.5),
	}
	res, err := Run(samples, regions, epaOptions())
	require.NoError(t, err)

	assert.ErrorIs(t, res.Stats.TriangulationError, mesh.ErrTooFewPoints)
	require.Len(t, res.Records, 2)

	assert.Nil(t, res.Records[0].Value)
	assert.Equal(t, "Sin datos", res.Records[0].Category)
	assert.Equal(t, model.MethodNone, res.Records[0].Method)

	require.NotNil(t, res.Records[1].Value)
	assert.Equal(t, 8.0, *res.Records[1].Value)
	assert.Equal(t, "Bueno", res.Records[1].Category)
}

func TestRun_Scenario4_HullMiss(t *testing.T) {
	res, err := Run(affineSensors(), []model.Region{box("Lejos", 4.5, 4.5, 5.5, 5.5)}, epaOptions())
	require.NoError(t, err)

	rec := res.Records[0]
	assert.Nil(t, rec.Value)
	assert.Equal(t, "Sin datos", rec.Category)
	assert.Equal(t, 1, res.Stats.NoData)
}

func TestRun_Scenario5_InvalidRegionSkipped(t *testing.T) {
	regions := []model.Region{
		box("Norte", 0.2, 0.2, 0.4, 0.4),
		{Name: "Rota", Boundary: geom.NewPolygon(geom.XY)},
		{Name: "Sin forma", Boundary: nil},
		box("Sur", 0.1, 0.1, 0.2, 0.2),
	}
	res, err := Run(affineSensors(), regions, epaOptions())
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "Norte", res.Records[0].Name)
	assert.Equal(t, "Sur", res.Records[1].Name)
	assert.Equal(t, 0, res.Records[0].Index)
	assert.Equal(t, 3, res.Records[1].Index, "index refers to the input region list")

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.Equal(t, "Rota", res.Skipped[0].Name)
	assert.NotEmpty(t, res.Skipped[0].Reason)
	assert.Equal(t, 2, res.Stats.Skipped)
}

func TestRun_ContainmentDominance(t *testing.T) {
	// The contained sensor disagrees with what the mesh would give.
	samples := append(affineSensors(), sample(9, 0.3, 0.3, 100))
	res, err := Run(samples, []model.Region{box("Centro", 0.2, 0.2, 0.4, 0.4)}, epaOptions())
	require.NoError(t, err)

	rec := res.Records[0]
	require.NotNil(t, rec.Value)
	assert.Equal(t, 100.0, *rec.Value)
	assert.Equal(t, model.MethodContainment, rec.Method)
}

func TestRun_AffineExactness(t *testing.T) {
	field := func(lon, lat float64) float64 { return 3 - 2*lon + 7*lat }
	var samples []model.SensorSample
	n := 0
	for _, x := range []float64{0, 2.5, 5, 7.5, 10} {
		for _, y := range []float64{0, 3, 6, 9} {
			n++
			samples = append(samples, sample(n, x+0.01*y, y, field(x+0.01*y, y)))
		}
	}
	var regions []model.Region
	for i, c := range [][2]float64{{1.1, 1.4}, {4.2, 7.3}, {8.8, 2.2}, {6.1, 4.9}} {
		regions = append(regions, box(fmt.Sprintf("r%d", i), c[0]-0.2, c[1]-0.2, c[0]+0.2, c[1]+0.2))
	}

	opts := epaOptions()
	opts.RoundingPrecision = 6
	res, err := Run(samples, regions, opts)
	require.NoError(t, err)
	require.Nil(t, res.Stats.TriangulationError)

	for i, rec := range res.Records {
		require.NotNil(t, rec.Value, rec.Name)
		assert.Equal(t, model.MethodInterpolation, rec.Method)
		c := [][2]float64{{1.1, 1.4}, {4.2, 7.3}, {8.8, 2.2}, {6.1, 4.9}}[i]
		assert.InDelta(t, field(c[0], c[1]), *rec.Value, 1e-5)
	}
}

func TestRun_PollutantSelection(t *testing.T) {
	samples := []model.SensorSample{{
		Index:      1,
		Coordinate: model.Coordinate{Lon: 0.5, Lat: 0.5},
		Measurements: map[model.Pollutant]float64{
			model.PM1_0: 4,
			model.PM2_5: 40,
		},
	}}
	region := []model.Region{box("Centro", 0, 0, 1, 1)}

	opts := epaOptions()
	opts.Pollutant = model.PM1_0
	res, err := Run(samples, region, opts)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *res.Records[0].Value)

	opts.Pollutant = model.PM2_5
	res, err = Run(samples, region, opts)
	require.NoError(t, err)
	assert.Equal(t, 40.0, *res.Records[0].Value)
	assert.Equal(t, "No saludable para grupos sensibles", res.Records[0].Category)
}

func TestRun_SamplesWithoutPollutantIgnored(t *testing.T) {
	samples := []model.SensorSample{{
		Index:        1,
		Coordinate:   model.Coordinate{Lon: 0.5, Lat: 0.5},
		Measurements: map[model.Pollutant]float64{model.PM1_0: 4},
	}}
	res, err := Run(samples, []model.Region{box("Centro", 0, 0, 1, 1)}, epaOptions())
	require.NoError(t, err)
	assert.Nil(t, res.Records[0].Value)
	assert.Equal(t, 0, res.Stats.Sensors)
}

func TestRun_Rounding(t *testing.T) {
	samples := []model.SensorSample{sample(1, 0.5, 0.5, 12.004), sample(2, 0.6, 0.6, 12.0)}
	res, err := Run(samples, []model.Region{box("Centro", 0, 0, 1, 1)}, epaOptions())
	require.NoError(t, err)
	// 12.002 rounds to 12.0, which classifies in the first band.
	assert.Equal(t, 12.0, *res.Records[0].Value)
	assert.Equal(t, "Bueno", res.Records[0].Category)

	opts := epaOptions()
	opts.RoundingPrecision = 0
	res, err = Run([]model.SensorSample{sample(1, 0.5, 0.5, 18.6)}, []model.Region{box("Centro", 0, 0, 1, 1)}, opts)
	require.NoError(t, err)
	assert.Equal(t, 19.0, *res.Records[0].Value)
}

func TestRun_DuplicateCoordinatesAveraged(t *testing.T) {
	samples := []model.SensorSample{
		sample(1, 0, 0, 8),
		sample(2, 0, 0, 12),
		sample(3, 1, 0, 20),
		sample(4, 0, 1, 30),
	}
	res, err := Run(samples, []model.Region{box("Cerca", 0.05, 0.05, 0.15, 0.15)}, epaOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.MeshVertices)
	assert.Equal(t, 4, res.Stats.Sensors)
	// Same as a single sensor of 10 at the origin: 10 + 10·0.1 + 20·0.1.
	assert.InDelta(t, 13.0, *res.Records[0].Value, 1e-9)
}

func TestRun_EmptyInputs(t *testing.T) {
	res, err := Run(nil, nil, epaOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Skipped)
	assert.Error(t, res.Stats.TriangulationError)

	res, err = Run(nil, []model.Region{box("Centro", 0, 0, 1, 1)}, epaOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Nil(t, res.Records[0].Value)
	assert.Equal(t, "Sin datos", res.Records[0].Category)
}

func TestRun_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Options)
	}{
		{"pollutant", func(o *Options) { o.Pollutant = "o3" }},
		{"profile", func(o *Options) { o.Profile = classify.Profile{} }},
		{"precision", func(o *Options) { o.RoundingPrecision = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := epaOptions()
			tt.mod(&opts)
			_, err := Run(nil, nil, opts)
			assert.Error(t, err)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	var samples []model.SensorSample
	for i := 0; i < 40; i++ {
		x := float64((i*37)%101) / 10
		y := float64((i*53)%97) / 10
		samples = append(samples, sample(i, x, y, float64(5+(i*7)%60)))
	}
	var regions []model.Region
	for i := 0; i < 30; i++ {
		x := float64(i%6) * 2
		y := float64(i/6) * 2
		regions = append(regions, box(fmt.Sprintf("colonia-%02d", i), x, y, x+1.3, y+1.3))
	}

	serial := epaOptions()
	serial.Concurrency = 1
	parallel := epaOptions()
	parallel.Concurrency = 16

	a, err := Run(samples, regions, serial)
	require.NoError(t, err)
	b, err := Run(samples, regions, parallel)
	require.NoError(t, err)

	ignore := cmpopts.IgnoreFields(model.RegionEstimate{}, "Boundary")
	if diff := cmp.Diff(a.Records, b.Records, ignore); diff != "" {
		t.Errorf("records differ between runs (-serial +parallel):\n%s", diff)
	}
	for i, rec := range b.Records {
		assert.Equal(t, regions[i].Name, rec.Name)
	}
	assert.Equal(t, a.Stats.Interpolated, b.Stats.Interpolated)
	assert.Equal(t, a.Stats.Containment, b.Stats.Containment)
}

func TestRun_CategoryAlwaysSet(t *testing.T) {
	res, err := Run(affineSensors(), []model.Region{
		box("a", 0.1, 0.1, 0.2, 0.2),
		box("b", 9, 9, 10, 10),
		box("c", -1, -1, 0.5, 0.5),
	}, Options{Pollutant: model.PM2_5, Profile: classify.NOM172(), RoundingPrecision: 2})
	require.NoError(t, err)
	for _, rec := range res.Records {
		assert.NotEmpty(t, rec.Category)
		if rec.Value == nil {
			assert.Equal(t, classify.NoDataLabel, rec.Category)
		}
	}
}
