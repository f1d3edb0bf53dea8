package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meenmo/prepaysim/config"
)

func TestDefaultConfigValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.DefaultConfig.Validate())
	require.Equal(t, 1.25, config.DefaultConfig.StressMultiplier)
	require.Equal(t, 100, config.DefaultConfig.Scenarios)
	require.Equal(t, 100, config.DefaultConfig.MinObservations)
	require.Equal(t, 2.0, config.DefaultConfig.MinSpanYears)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prepaysim.yaml")
	yaml := "scenarios: 250\nworkers: 3\ncalibration_timeout: 5s\nmax_enumerated_branches: 27\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 250, cfg.Scenarios)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 5*time.Second, cfg.CalibrationTimeout)
	require.Equal(t, 27, cfg.MaxEnumeratedBranches)
	require.Equal(t, 1.25, cfg.StressMultiplier)
	require.Equal(t, 7, cfg.VasicekStepDays)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PREPAYSIM_SCENARIOS", "42")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 42, cfg.Scenarios)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios: 0\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
