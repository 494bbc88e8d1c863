// Package estimate turns sensor samples into one value and label per region:
// the mean of contained sensors first, mesh interpolation at the region
// centroid second, no value otherwise.
package estimate

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/fer004/Sensores/internal/classify"
	"github.com/fer004/Sensores/internal/geo"
	"github.com/fer004/Sensores/internal/interp"
	"github.com/fer004/Sensores/internal/mesh"
	"github.com/fer004/Sensores/internal/model"
)

// DefaultConcurrency bounds parallel region evaluation when Options leaves it unset.
const DefaultConcurrency = 8

// weightTolerance bounds how negative a barycentric weight may be before the
// centroid counts as outside its located triangle.
const weightTolerance = 1e-9

// Options select what a run estimates. They are passed in explicitly; Run
// reads no global state.
type Options struct {
	Pollutant         model.Pollutant
	Profile           classify.Profile
	RoundingPrecision int
	Concurrency       int
	Logger            *zap.Logger
}

// Stats count how each region was resolved.
type Stats struct {
	Sensors      int // samples with a usable value for the pollutant
	MeshVertices int // distinct coordinates handed to the triangulator
	Regions      int
	Skipped      int
	Containment  int
	Interpolated int
	NoData       int
	Singular     int // enclosing triangle found but degenerate
	Extrapolated int // centroid weights fell outside the located triangle

	// TriangulationError is set when no mesh could be built; the run still
	// completes using containment only.
	TriangulationError error
}

// Result is the ordered output of one run.
type Result struct {
	Records []model.RegionEstimate
	Skipped []model.SkippedRegion
	Stats   Stats
}

type evidence struct {
	coords []model.Coordinate
	values []float64
}

type outcome struct {
	record       model.RegionEstimate
	singular     bool
	extrapolated bool
}

// Run estimates every valid region in input order. Invalid regions are left
// out of Records and listed in Skipped. Run only fails for unusable options.
func Run(samples []model.SensorSample, regions []model.Region, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "estimate"))

	sensors := selectEvidence(samples, opts.Pollutant)
	meshPts := dedupe(sensors)

	res := &Result{}
	res.Stats.Sensors = len(sensors.coords)
	res.Stats.MeshVertices = len(meshPts.coords)

	m, err := mesh.Triangulate(meshPts.coords)
	if err != nil {
		log.Warn("triangulation failed, continuing without interpolation",
			zap.Int("points", len(meshPts.coords)),
			zap.Error(err),
		)
		res.Stats.TriangulationError = err
		m = nil
	}

	valid := make([]int, 0, len(regions))
	for i, r := range regions {
		if err := geo.Validate(r.Boundary); err != nil {
			log.Warn("region skipped", zap.Int("index", i), zap.String("name", r.Name), zap.Error(err))
			res.Skipped = append(res.Skipped, model.SkippedRegion{Index: i, Name: r.Name, Reason: err.Error()})
			continue
		}
		valid = append(valid, i)
	}

	e := &estimator{opts: opts, sensors: sensors, mesh: m, values: meshPts.values}
	slots := make([]outcome, len(valid))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for slot, idx := range valid {
		g.Go(func() error {
			o := e.region(regions[idx])
			o.record.Index = idx
			slots[slot] = o
			return nil
		})
	}
	_ = g.Wait()

	res.Records = make([]model.RegionEstimate, len(slots))
	for i, o := range slots {
		res.Records[i] = o.record
		switch o.record.Method {
		case model.MethodContainment:
			res.Stats.Containment++
		case model.MethodInterpolation:
			res.Stats.Interpolated++
		default:
			res.Stats.NoData++
		}
		if o.singular {
			res.Stats.Singular++
			log.Debug("singular enclosing triangle", zap.String("region", o.record.Name))
		}
		if o.extrapolated {
			res.Stats.Extrapolated++
			log.Warn("centroid weights outside the located triangle", zap.String("region", o.record.Name))
		}
	}
	res.Stats.Regions = len(res.Records)
	res.Stats.Skipped = len(res.Skipped)

	log.Info("estimation complete",
		zap.String("pollutant", string(opts.Pollutant)),
		zap.String("profile", opts.Profile.Name),
		zap.Int("sensors", res.Stats.Sensors),
		zap.Int("regions", res.Stats.Regions),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("containment", res.Stats.Containment),
		zap.Int("interpolated", res.Stats.Interpolated),
		zap.Int("no_data", res.Stats.NoData),
	)
	return res, nil
}

func (o Options) validate() error {
	if o.Pollutant != model.PM1_0 && o.Pollutant != model.PM2_5 {
		return fmt.Errorf("estimate: unsupported pollutant %q", o.Pollutant)
	}
	if err := o.Profile.Validate(); err != nil {
		return fmt.Errorf("estimate: %w", err)
	}
	if o.RoundingPrecision < 0 || o.RoundingPrecision > 12 {
		return errors.New("estimate: rounding precision must be between 0 and 12")
	}
	return nil
}

type estimator struct {
	opts    Options
	sensors evidence
	mesh    *mesh.Mesh
	values  []float64
}

func (e *estimator) region(r model.Region) outcome {
	rec := model.RegionEstimate{Name: r.Name, Boundary: r.Boundary, Method: model.MethodNone}
	var out outcome

	var contained []float64
	for i, c := range e.sensors.coords {
		if geo.Contains(r.Boundary, c) {
			contained = append(contained, e.sensors.values[i])
		}
	}

	switch {
	case len(contained) > 0:
		v := stat.Mean(contained, nil)
		rec.Value = e.round(v)
		rec.Method = model.MethodContainment
		rec.Sensors = len(contained)
	case e.mesh != nil:
		c, err := geo.Centroid(r.Boundary)
		if err != nil {
			break
		}
		idx := e.mesh.Locate(c)
		if idx == mesh.NotFound {
			break
		}
		s := e.mesh.Simplex(idx)
		v, w, err := interp.Interpolate(c, e.mesh.Vertices(idx), [3]float64{e.values[s[0]], e.values[s[1]], e.values[s[2]]})
		if err != nil {
			out.singular = errors.Is(err, interp.ErrSingular)
			break
		}
		out.extrapolated = !w.Inside(weightTolerance)
		rec.Value = e.round(v)
		rec.Method = model.MethodInterpolation
		rec.Sensors = 3
	}

	rec.Category = e.opts.Profile.Classify(rec.Value)
	out.record = rec
	return out
}

func (e *estimator) round(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	scale := math.Pow(10, float64(e.opts.RoundingPrecision))
	r := math.Round(v*scale) / scale
	if math.IsInf(r, 0) || math.IsNaN(r) {
		r = v
	}
	return &r
}

// selectEvidence keeps samples with a finite coordinate and a finite value
// for pol, in input order.
func selectEvidence(samples []model.SensorSample, pol model.Pollutant) evidence {
	var ev evidence
	for _, s := range samples {
		if !s.Coordinate.Finite() {
			continue
		}
		v, ok := s.Value(pol)
		if !ok {
			continue
		}
		ev.coords = append(ev.coords, s.Coordinate)
		ev.values = append(ev.values, v)
	}
	return ev
}

// dedupe merges samples at identical coordinates into one mesh vertex whose
// value is their mean. First-seen order is kept.
func dedupe(ev evidence) evidence {
	var out evidence
	index := make(map[model.Coordinate]int, len(ev.coords))
	var groups [][]float64
	for i, c := range ev.coords {
		j, ok := index[c]
		if !ok {
			j = len(out.coords)
			index[c] = j
			out.coords = append(out.coords, c)
			groups = append(groups, nil)
		}
		groups[j] = append(groups[j], ev.values[i])
	}
	out.values = make([]float64, len(groups))
	for i, g := range groups {
		out.values[i] = stat.Mean(g, nil)
	}
	return out
}
