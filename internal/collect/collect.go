// Package collect polls the sensor API for every inventory entry and turns
// the answers into sensor samples.
package collect

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fer004/Sensores/internal/inventory"
	"github.com/fer004/Sensores/internal/model"
	"github.com/fer004/Sensores/pkg/purpleair"
)

// Options configure a collection pass.
type Options struct {
	Fields      []string
	Concurrency int
	// Now stamps the samples; defaults to time.Now in UTC.
	Now func() time.Time
}

// Result holds polled samples in inventory order.
type Result struct {
	Samples []model.SensorSample
	Failed  int // poll returned an error
	Empty   int // poll succeeded without any measurement
}

// Collect polls each sensor once. Individual failures are logged and
// counted; only context cancellation aborts the pass.
func Collect(ctx context.Context, client purpleair.Client, sensors []inventory.Sensor, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "collect"))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	stamp := now().UTC()

	type slot struct {
		sample *model.SensorSample
		failed bool
	}
	slots := make([]slot, len(sensors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, s := range sensors {
		g.Go(func() error {
			resp, err := client.GetSensor(gctx, s.Index, opts.Fields)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("sensor poll failed", zap.Int("sensor_index", s.Index), zap.Error(err))
				slots[i].failed = true
				return nil
			}
			slots[i].sample = toSample(s, resp, stamp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "collect: poll sensors")
	}

	res := &Result{}
	for i, sl := range slots {
		switch {
		case sl.failed:
			res.Failed++
		case sl.sample == nil:
			res.Empty++
			log.Debug("sensor reported no measurements", zap.Int("sensor_index", sensors[i].Index))
		default:
			res.Samples = append(res.Samples, *sl.sample)
		}
	}

	log.Info("sensors polled",
		zap.Int("sensors", len(sensors)),
		zap.Int("samples", len(res.Samples)),
		zap.Int("failed", res.Failed),
		zap.Int("empty", res.Empty),
	)
	return res, nil
}

// toSample merges inventory position with polled readings. It returns nil
// when the response carries no measurement.
func toSample(s inventory.Sensor, resp *purpleair.Sensor, stamp time.Time) *model.SensorSample {
	m := make(map[model.Pollutant]float64, 2)
	if resp.PM1_0 != nil {
		m[model.PM1_0] = *resp.PM1_0
	}
	if resp.PM2_5 != nil {
		m[model.PM2_5] = *resp.PM2_5
	}
	if len(m) == 0 {
		return nil
	}
	name := s.Name
	if name == "" {
		name = resp.Name
	}
	return &model.SensorSample{
		Index:        s.Index,
		Name:         name,
		Coordinate:   s.Coordinate,
		Measurements: m,
		Timestamp:    stamp,
	}
}

// Offline builds samples from inventory readings, for runs without API access.
func Offline(inv *inventory.Inventory, now time.Time) []model.SensorSample {
	samples := inv.Samples()
	for i := range samples {
		samples[i].Timestamp = now.UTC()
	}
	return samples
}
