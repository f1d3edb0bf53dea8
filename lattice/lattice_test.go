package lattice_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/curve"
	"github.com/meenmo/prepaysim/lattice"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/utils"
)

const tol = 1e-9

var cutoff = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func monthly(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = utils.AddMonth(cutoff, i+1)
	}
	return dates
}

// hwParams builds Hull-White parameters on a flat 9% EA forward curve.
func hwParams(t *testing.T, dates []time.Time) calibration.Params {
	t.Helper()

	forward := math.Log1p(0.09)
	nodes := []curve.ForwardNode{{TenorDays: 1, Time: 1.0 / 365, Forward: forward}}
	for _, d := range dates {
		days := utils.DaysBetween(cutoff, d)
		nodes = append(nodes, curve.ForwardNode{TenorDays: days, Time: utils.TenorYears(days), Forward: forward})
	}
	const a, sigma = 0.8, 0.015
	return calibration.Params{
		Model:            calibration.HullWhite,
		Space:            calibration.ShortRateSpace,
		Kappa:            a,
		Sigma:            sigma,
		R0:               forward,
		StressMultiplier: 1,
		Drift:            calibration.NewDrift(a, sigma, nodes, forward),
	}
}

func TestTransitionProbabilities_Invariants(t *testing.T) {
	t.Parallel()

	for i := -50; i <= 50; i++ {
		alpha := float64(i) / 100
		p, err := lattice.TransitionProbabilities(alpha, tol)
		require.NoError(t, err, "alpha=%g", alpha)
		require.InDelta(t, 1, p.Sum(), 1e-15, "alpha=%g", alpha)
		require.GreaterOrEqual(t, p.Up, 0.0)
		require.GreaterOrEqual(t, p.Mid, 0.0)
		require.GreaterOrEqual(t, p.Down, 0.0)
	}

	p, err := lattice.TransitionProbabilities(0, tol)
	require.NoError(t, err)
	require.InDelta(t, 1.0/6, p.Up, 1e-15)
	require.InDelta(t, 2.0/3, p.Mid, 1e-15)
	require.InDelta(t, 1.0/6, p.Down, 1e-15)
}

func TestTransitionProbabilities_FailsLoudly(t *testing.T) {
	t.Parallel()

	// At |α| = 1 the middle probability is −1/3.
	_, err := lattice.TransitionProbabilities(1, tol)
	require.Error(t, err)
	_, err = lattice.TransitionProbabilities(-3, tol)
	require.Error(t, err)
	_, err = lattice.TransitionProbabilities(math.NaN(), tol)
	require.Error(t, err)

	p, err := lattice.TransitionProbabilities(0.8, tol)
	require.NoError(t, err)
	require.InDelta(t, 2.0/3-0.64, p.Mid, 1e-15)
}

func TestBuild_Recombines(t *testing.T) {
	t.Parallel()

	dates := monthly(24)
	l, err := lattice.Build(hwParams(t, dates), cutoff, dates, tol)
	require.NoError(t, err)
	require.Equal(t, 24, l.Steps())

	steps := l.Steps()
	require.LessOrEqual(t, l.NodeCount(), (steps+1)*(steps+1))

	// Level range grows by at most one per step on a uniform grid.
	for k := 1; k <= steps; k++ {
		_, ok := l.Node(k, k+1)
		require.False(t, ok, "step %d", k)
		_, ok = l.Node(k, -k-1)
		require.False(t, ok, "step %d", k)
	}

	root, ok := l.Node(0, 0)
	require.True(t, ok)
	require.InDelta(t, 0, root.X, 0)
	require.InDelta(t, math.Log1p(0.09), root.ShortRate, 1e-15)
	require.Equal(t, 0, root.Central)
}

func TestBuild_FirstStepMatchesMoments(t *testing.T) {
	t.Parallel()

	dates := monthly(3)
	p := hwParams(t, dates)
	l, err := lattice.Build(p, cutoff, dates, tol)
	require.NoError(t, err)

	dt := utils.YearFraction(cutoff, dates[0])
	mean, second := 0.0, 0.0
	for s := range l.Branches() {
		x := s.Points[1].ShortRate - p.Drift.PhiAt(dt)
		mean += s.Weight * x
		second += s.Weight * x * x
	}
	require.InDelta(t, 0, mean, 1e-15)
	require.InDelta(t, p.Sigma*p.Sigma*dt, second, 1e-12)
}

func TestBranches_WeightsSumToOne(t *testing.T) {
	t.Parallel()

	dates := monthly(6)
	p := hwParams(t, dates)
	l, err := lattice.Build(p, cutoff, dates, tol)
	require.NoError(t, err)
	require.Equal(t, 729, l.BranchCount())

	total := 0.0
	count := 0
	expected := make([]float64, l.Steps()+1)
	for s := range l.Branches() {
		require.Len(t, s.Points, 7)
		require.Equal(t, cutoff, s.Points[0].Date)
		require.Equal(t, dates[5], s.Points[6].Date)
		require.Equal(t, scenario.Base, s.Stress)
		require.Greater(t, s.Weight, 0.0)
		total += s.Weight
		for k, pt := range s.Points {
			expected[k] += s.Weight * pt.ShortRate
		}
		count++
	}
	require.Equal(t, 729, count)
	require.InDelta(t, 1, total, 1e-12)

	// The deviation process is symmetric about zero, so E[r] = φ on every step.
	times := make([]float64, len(dates)+1)
	for i, d := range dates {
		times[i+1] = utils.YearFraction(cutoff, d)
	}
	for k, tk := range times {
		require.InDelta(t, p.Drift.PhiAt(tk), expected[k], 1e-12, "step %d", k)
	}
}

func TestSample_DeterministicAndOnLattice(t *testing.T) {
	t.Parallel()

	dates := monthly(12)
	p, err := hwParams(t, dates).Stress(1.25)
	require.NoError(t, err)
	l, err := lattice.Build(p, cutoff, dates, tol)
	require.NoError(t, err)
	require.Equal(t, 531441, l.BranchCount())

	var first, second []scenario.Scenario
	for s := range l.Sample(17, 50) {
		first = append(first, s)
	}
	for s := range l.Sample(17, 50) {
		second = append(second, s)
	}
	require.Len(t, first, 50)
	require.Equal(t, first, second)

	for _, s := range first {
		require.InDelta(t, 0.02, s.Weight, 1e-15)
		require.Equal(t, scenario.Stressed, s.Stress)
		found := false
		for level := -12; level <= 12; level++ {
			node, ok := l.Node(12, level)
			if ok && node.ShortRate == s.Points[12].ShortRate {
				found = true
				break
			}
		}
		require.True(t, found)
	}
}

func TestBranchCount_Saturates(t *testing.T) {
	t.Parallel()

	dates := monthly(60)
	l, err := lattice.Build(hwParams(t, dates), cutoff, dates, tol)
	require.NoError(t, err)
	require.Equal(t, math.MaxInt, l.BranchCount())
}

func TestBuild_Rejects(t *testing.T) {
	t.Parallel()

	dates := monthly(3)
	p := hwParams(t, dates)

	noDrift := p
	noDrift.Drift = nil
	_, err := lattice.Build(noDrift, cutoff, dates, tol)
	require.Error(t, err)

	_, err = lattice.Build(p, cutoff, nil, tol)
	require.Error(t, err)

	_, err = lattice.Build(p, cutoff, []time.Time{dates[1], dates[0]}, tol)
	require.Error(t, err)

	_, err = lattice.Build(p, cutoff, []time.Time{cutoff}, tol)
	require.Error(t, err)
}
