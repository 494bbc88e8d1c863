package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fer004/Sensores/internal/classify"
	"github.com/fer004/Sensores/internal/config"
	"github.com/fer004/Sensores/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "serve", "history", "profiles"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sensores", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"pollutant", "profile", "precision", "offline", "no-history"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
		require.NotNil(t, serveCmd.Flags().Lookup(name), "serve command should have --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	flag = serveCmd.Flags().Lookup("run")
	require.NotNil(t, flag)
	assert.Equal(t, "true", flag.DefValue)
}

func TestHistoryCommand_Flags(t *testing.T) {
	flag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestApplyRunFlags(t *testing.T) {
	cfg = &config.Config{
		Estimate: config.EstimateConfig{Pollutant: "pm2_5", Profile: "epa-pm25", RoundingPrecision: 2},
		History:  config.HistoryConfig{Driver: "sqlite"},
	}
	t.Cleanup(func() { cfg = nil })

	require.NoError(t, runCmd.Flags().Set("pollutant", "pm1_0"))
	require.NoError(t, runCmd.Flags().Set("precision", "0"))
	require.NoError(t, runCmd.Flags().Set("no-history", "true"))
	applyRunFlags(runCmd)

	assert.Equal(t, "pm1_0", cfg.Estimate.Pollutant)
	assert.Equal(t, "epa-pm25", cfg.Estimate.Profile, "unset flags keep config values")
	assert.Equal(t, 0, cfg.Estimate.RoundingPrecision)
	assert.Equal(t, "none", cfg.History.Driver)
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{{
		ID:           "abc12345-6789-0000-0000-000000000000",
		StartedAt:    now,
		Pollutant:    model.PM2_5,
		Profile:      "epa-pm25",
		Sensors:      12,
		Regions:      40,
		Containment:  10,
		Interpolated: 25,
		NoData:       5,
		DurationMs:   1234,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "POLLUTANT")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2026-03-01 12:00")
	assert.Contains(t, output, "pm2_5")
	assert.Contains(t, output, "1.234s")
}

func TestFormatRegionHistory(t *testing.T) {
	v := 8.25
	points := []model.HistoryPoint{
		{RunID: "run-2", StartedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), Value: &v, Category: "Bueno", Method: model.MethodInterpolation},
		{RunID: "run-1", StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Category: "Sin datos", Method: model.MethodNone},
	}

	var buf bytes.Buffer
	formatRegionHistory(&buf, points)

	output := buf.String()
	assert.Contains(t, output, "8.25")
	assert.Contains(t, output, "interpolation")
	assert.Contains(t, output, "Sin datos")
}

func TestFormatProfiles(t *testing.T) {
	var buf bytes.Buffer
	formatProfiles(&buf, classify.Builtin().Profiles())

	output := buf.String()
	assert.Contains(t, output, classify.EPAPM25)
	assert.Contains(t, output, classify.NOM172PM25)
	assert.Contains(t, output, "<=inf")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijk"))
	assert.Equal(t, "short", truncateID("short"))
}
