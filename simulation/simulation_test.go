package simulation_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/simulation"
)

var cutoff = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func params() calibration.Params {
	return calibration.Params{
		Model:            calibration.Vasicek,
		Space:            calibration.ShortRateSpace,
		Kappa:            2,
		Theta:            0.10,
		Sigma:            0.02,
		R0:               0.15,
		StressMultiplier: 1,
	}
}

func TestNewPathSimulator_Grid(t *testing.T) {
	t.Parallel()

	sim, err := simulation.NewPathSimulator(params(), cutoff, cutoff.AddDate(0, 0, 30),
		simulation.Options{Paths: 4, StepDays: 7, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, 5, sim.Steps())

	path := sim.Path(42, 0)
	require.Len(t, path.Points, 6)
	require.Equal(t, cutoff, path.Points[0].Date)
	require.Equal(t, cutoff.AddDate(0, 0, 35), path.Points[5].Date)
	require.InDelta(t, 0.15, path.Points[0].ShortRate, 0)
	require.InDelta(t, 0.25, path.Weight, 0)
	require.Equal(t, scenario.Base, path.Stress)
	for _, p := range path.Points {
		require.InDelta(t, rates.ToEffectiveAnnual(p.ShortRate), p.EffectiveAnnual, 1e-15)
	}
}

func TestNewPathSimulator_Rejects(t *testing.T) {
	t.Parallel()

	opts := simulation.Options{Paths: 10, StepDays: 7, Seed: 1}
	horizon := cutoff.AddDate(1, 0, 0)

	hw := params()
	hw.Model = calibration.HullWhite
	_, err := simulation.NewPathSimulator(hw, cutoff, horizon, opts)
	require.Error(t, err)

	_, err = simulation.NewPathSimulator(params(), cutoff, cutoff, opts)
	require.Error(t, err)

	_, err = simulation.NewPathSimulator(params(), cutoff, horizon, simulation.Options{StepDays: 7})
	require.Error(t, err)

	_, err = simulation.NewPathSimulator(params(), cutoff, horizon, simulation.Options{Paths: 1})
	require.Error(t, err)
}

func TestScenarios_DeterministicWithSeed(t *testing.T) {
	t.Parallel()

	horizon := cutoff.AddDate(2, 0, 0)
	a, err := simulation.NewPathSimulator(params(), cutoff, horizon, simulation.Options{Paths: 5, StepDays: 7, Seed: 99})
	require.NoError(t, err)
	b, err := simulation.NewPathSimulator(params(), cutoff, horizon, simulation.Options{Paths: 5, StepDays: 7, Seed: 99})
	require.NoError(t, err)
	c, err := simulation.NewPathSimulator(params(), cutoff, horizon, simulation.Options{Paths: 5, StepDays: 7, Seed: 100})
	require.NoError(t, err)

	var first, second, other []scenario.Scenario
	for s := range a.Scenarios() {
		first = append(first, s)
	}
	for s := range b.Scenarios() {
		second = append(second, s)
	}
	for s := range c.Scenarios() {
		other = append(other, s)
	}
	require.Len(t, first, 5)
	require.Equal(t, first, second)
	require.NotEqual(t, first[0].Points[10].ShortRate, other[0].Points[10].ShortRate)
	require.NotEqual(t, first[0].Points[10].ShortRate, first[1].Points[10].ShortRate)
}

func TestScenarios_StopsEarly(t *testing.T) {
	t.Parallel()

	sim, err := simulation.NewPathSimulator(params(), cutoff, cutoff.AddDate(1, 0, 0),
		simulation.Options{Paths: 100, StepDays: 7, Seed: 5})
	require.NoError(t, err)

	n := 0
	for s := range sim.Scenarios() {
		require.Equal(t, n, s.ID)
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestScenarios_RevertToTheta(t *testing.T) {
	t.Parallel()

	p := params()
	sim, err := simulation.NewPathSimulator(p, cutoff, cutoff.AddDate(10, 0, 0),
		simulation.Options{Paths: 2000, StepDays: 7, Seed: 2024})
	require.NoError(t, err)

	var terminal []float64
	for s := range sim.Scenarios() {
		terminal = append(terminal, s.Points[len(s.Points)-1].ShortRate)
	}
	mean, sd := stat.MeanStdDev(terminal, nil)
	require.InDelta(t, p.Theta, mean, 0.002)
	require.InEpsilon(t, p.Sigma/math.Sqrt(2*p.Kappa), sd, 0.1)
}

func TestScenarios_StressedTag(t *testing.T) {
	t.Parallel()

	stressed, err := params().Stress(1.25)
	require.NoError(t, err)
	sim, err := simulation.NewPathSimulator(stressed, cutoff, cutoff.AddDate(1, 0, 0),
		simulation.Options{Paths: 1, StepDays: 7, Seed: 7})
	require.NoError(t, err)
	for s := range sim.Scenarios() {
		require.Equal(t, scenario.Stressed, s.Stress)
	}
}

func TestMixSeed(t *testing.T) {
	t.Parallel()

	require.Equal(t, simulation.MixSeed(1, 2), simulation.MixSeed(1, 2))
	require.NotEqual(t, simulation.MixSeed(1, 2), simulation.MixSeed(1, 3))
	require.NotEqual(t, simulation.MixSeed(1, 2), simulation.MixSeed(2, 2))
}
