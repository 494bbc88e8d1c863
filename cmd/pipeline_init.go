package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/fer004/Sensores/internal/classify"
	"github.com/fer004/Sensores/internal/monitoring"
	"github.com/fer004/Sensores/internal/pipeline"
	"github.com/fer004/Sensores/internal/resilience"
	"github.com/fer004/Sensores/internal/store"
	"github.com/fer004/Sensores/pkg/purpleair"
)

// pipelineEnv holds everything the run and serve commands need.
type pipelineEnv struct {
	Store    store.Store // nil when history is disabled
	Profiles *classify.Registry
	Metrics  *monitoring.Metrics
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the history store, builds
// the API client and profile registry, and wires the Pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context, mode string, reg prometheus.Registerer) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	profiles, err := loadProfiles()
	if err != nil {
		return nil, err
	}

	metrics, err := monitoring.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.History)
	if err != nil {
		return nil, eris.Wrap(err, "open history")
	}

	var client purpleair.Client
	if !cfg.Input.Offline {
		client = newPurpleAirClient()
	}

	return &pipelineEnv{
		Store:    st,
		Profiles: profiles,
		Metrics:  metrics,
		Pipeline: pipeline.New(cfg, st, client, profiles, metrics),
	}, nil
}

// loadProfiles returns the built-in profiles plus any from the profiles file.
func loadProfiles() (*classify.Registry, error) {
	profiles := classify.Builtin()
	if cfg.Estimate.ProfilesFile != "" {
		if err := profiles.LoadFile(cfg.Estimate.ProfilesFile); err != nil {
			return nil, eris.Wrap(err, "load profiles file")
		}
	}
	return profiles, nil
}

func newPurpleAirClient() purpleair.Client {
	pa := cfg.PurpleAir
	return purpleair.NewClient(pa.APIKey,
		purpleair.WithBaseURL(pa.BaseURL),
		purpleair.WithHTTPClient(&http.Client{Timeout: time.Duration(pa.TimeoutSecs) * time.Second}),
		purpleair.WithRateLimit(pa.RateLimit),
		purpleair.WithRetry(resilience.FromConfig(pa.Retry)),
	)
}
