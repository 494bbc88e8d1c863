// Package pipeline runs one estimation pass end to end: inventory, sensor
// readings, region boundaries, estimation, exports, history and metrics.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fer004/Sensores/internal/classify"
	"github.com/fer004/Sensores/internal/collect"
	"github.com/fer004/Sensores/internal/config"
	"github.com/fer004/Sensores/internal/estimate"
	"github.com/fer004/Sensores/internal/export"
	"github.com/fer004/Sensores/internal/geo"
	"github.com/fer004/Sensores/internal/inventory"
	"github.com/fer004/Sensores/internal/model"
	"github.com/fer004/Sensores/internal/monitoring"
	"github.com/fer004/Sensores/internal/store"
	"github.com/fer004/Sensores/pkg/purpleair"
)

// Pipeline holds the collaborators of a run. Store, client and metrics may be
// nil: no history, offline only, no metrics.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	client   purpleair.Client
	profiles *classify.Registry
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// New creates a Pipeline.
func New(
	cfg *config.Config,
	st store.Store,
	client purpleair.Client,
	profiles *classify.Registry,
	metrics *monitoring.Metrics,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		client:   client,
		profiles: profiles,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Outcome is everything a run produced.
type Outcome struct {
	Run     *model.Run
	Samples []model.SensorSample
	Regions []model.Region
	Result  *estimate.Result
}

// Run executes one pass. Collaborator failures abort with an error; the
// estimation itself never fails once its inputs are valid.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	out, err := p.run(ctx)
	if err != nil {
		p.metrics.ObserveFailure()
		return nil, err
	}
	p.metrics.ObserveRun(out.Run, out.Result.Stats)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context) (*Outcome, error) {
	start := p.now()
	run := &model.Run{ID: uuid.New().String(), StartedAt: start.UTC()}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", run.ID))
	log.Info("pipeline: starting run")

	pol, ok := model.ParsePollutant(p.cfg.Estimate.Pollutant)
	if !ok {
		return nil, eris.Errorf("pipeline: unknown pollutant %q", p.cfg.Estimate.Pollutant)
	}
	profile, err := p.profiles.Get(p.cfg.Estimate.Profile)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve profile")
	}
	if !profile.Supports(pol) {
		return nil, eris.Errorf("pipeline: profile %s does not apply to %s", profile.Name, pol)
	}
	run.Pollutant = pol
	run.Profile = profile.Name

	var samples []model.SensorSample
	if err := phase(log, "inventory", func() error {
		samples, err = p.samples(ctx, start)
		return err
	}); err != nil {
		return nil, err
	}

	var regions []model.Region
	if err := phase(log, "regions", func() error {
		regions, err = geo.LoadRegions(p.cfg.Input.Regions, geo.LoadOptions{
			NameField: p.cfg.Input.NameField,
			Encoding:  p.cfg.Input.DBFEncoding,
		})
		return eris.Wrap(err, "pipeline: load regions")
	}); err != nil {
		return nil, err
	}

	var res *estimate.Result
	if err := phase(log, "estimate", func() error {
		res, err = estimate.Run(samples, regions, estimate.Options{
			Pollutant:         pol,
			Profile:           profile,
			RoundingPrecision: p.cfg.Estimate.RoundingPrecision,
			Concurrency:       p.cfg.Estimate.Concurrency,
			Logger:            zap.L().With(zap.String("run_id", run.ID)),
		})
		return eris.Wrap(err, "pipeline: estimate")
	}); err != nil {
		return nil, err
	}

	run.Sensors = res.Stats.Sensors
	run.Regions = res.Stats.Regions
	run.Skipped = res.Stats.Skipped
	run.Containment = res.Stats.Containment
	run.Interpolated = res.Stats.Interpolated
	run.NoData = res.Stats.NoData
	if res.Stats.TriangulationError != nil {
		run.TriangulationError = res.Stats.TriangulationError.Error()
	}

	if err := phase(log, "export", func() error {
		return p.export(samples, res.Records)
	}); err != nil {
		return nil, err
	}

	run.DurationMs = p.now().Sub(start).Milliseconds()

	if p.store != nil {
		if err := phase(log, "history", func() error {
			return eris.Wrap(p.store.SaveRun(ctx, run, res.Records), "pipeline: save run")
		}); err != nil {
			return nil, err
		}
	}

	log.Info("pipeline: run complete",
		zap.String("pollutant", string(pol)),
		zap.String("profile", profile.Name),
		zap.Int("sensors", run.Sensors),
		zap.Int("regions", run.Regions),
		zap.Int("skipped", run.Skipped),
		zap.Int("containment", run.Containment),
		zap.Int("interpolated", run.Interpolated),
		zap.Int("no_data", run.NoData),
		zap.Int64("duration_ms", run.DurationMs),
	)

	return &Outcome{Run: run, Samples: samples, Regions: regions, Result: res}, nil
}

// samples reads the inventory and, unless offline, polls every sensor.
func (p *Pipeline) samples(ctx context.Context, now time.Time) ([]model.SensorSample, error) {
	inv, err := inventory.Load(p.cfg.Input.Sensors)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load inventory")
	}
	if p.cfg.Input.Offline {
		return collect.Offline(inv, now), nil
	}
	if p.client == nil {
		return nil, eris.New("pipeline: no sensor API client configured for an online run")
	}
	res, err := collect.Collect(ctx, p.client, inv.Sensors, collect.Options{
		Fields:      p.cfg.PurpleAir.Fields,
		Concurrency: p.cfg.PurpleAir.Concurrency,
		Now:         func() time.Time { return now },
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: collect readings")
	}
	return res.Samples, nil
}

func (p *Pipeline) export(samples []model.SensorSample, records []model.RegionEstimate) error {
	outputs := []struct {
		path   string
		render func() ([]byte, error)
	}{
		{p.cfg.Output.SensorsGeoJSON, func() ([]byte, error) { return export.SensorsGeoJSON(samples) }},
		{p.cfg.Output.RegionsGeoJSON, func() ([]byte, error) { return export.RegionsGeoJSON(records) }},
		{p.cfg.Output.ArcGISJSON, func() ([]byte, error) { return export.ArcGISJSON(records) }},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		data, err := o.render()
		if err != nil {
			return eris.Wrapf(err, "pipeline: render %s", o.path)
		}
		if err := export.WriteFile(o.path, data); err != nil {
			return eris.Wrap(err, "pipeline: write output")
		}
	}
	return nil
}

// phase times fn and logs its outcome.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Debug("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", duration))
	return nil
}
