package calibration_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/config"
	"github.com/meenmo/prepaysim/curve"
	"github.com/meenmo/prepaysim/rates"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ouPath draws n short rates from the exact OU transition with step dt.
func ouPath(seed uint64, n int, kappa, theta, sigma, r0, dt float64) []float64 {
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
	decay := math.Exp(-kappa * dt)
	sd := math.Sqrt(sigma * sigma / (2 * kappa) * (1 - math.Exp(-2*kappa*dt)))
	out := make([]float64, n)
	out[0] = r0
	for i := 1; i < n; i++ {
		out[i] = theta + (out[i-1]-theta)*decay + sd*z.Rand()
	}
	return out
}

func weeklySeries(start time.Time, shortRates []float64) calibration.Series {
	s := make(calibration.Series, len(shortRates))
	for i, r := range shortRates {
		s[i] = calibration.Observation{Date: start.AddDate(0, 0, 7*i), Rate: rates.ToEffectiveAnnual(r)}
	}
	return s
}

func TestCalibrateVasicek_RecoversParameters(t *testing.T) {
	t.Parallel()

	const (
		kappa = 1.5
		sigma = 0.02
	)
	theta := math.Log(1.10)
	path := ouPath(7, 1000, kappa, theta, sigma, math.Log(1.12), 7.0/365.0)

	p, err := calibration.CalibrateVasicek(context.Background(), "Consumer",
		weeklySeries(day(2006, 1, 6), path), config.DefaultConfig, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Equal(t, calibration.Vasicek, p.Model)
	require.Equal(t, calibration.ShortRateSpace, p.Space)
	require.Nil(t, p.Drift)
	require.Greater(t, p.Kappa, 0.3)
	require.Less(t, p.Kappa, 4.0)
	require.InDelta(t, theta, p.Theta, 0.015)
	require.InEpsilon(t, sigma, p.Sigma, 0.10)
	require.InDelta(t, path[len(path)-1], p.R0, 1e-12)
	require.Len(t, p.Fit.Residuals(), len(path)-1)
	require.False(t, p.IsStressed())
}

func TestCalibrateVasicek_InsufficientData(t *testing.T) {
	t.Parallel()

	path := ouPath(1, 99, 1, 0.1, 0.02, 0.1, 7.0/365.0)
	_, err := calibration.CalibrateVasicek(context.Background(), "Housing",
		weeklySeries(day(2020, 1, 3), path), config.DefaultConfig, nil)

	var insufficient *calibration.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 99, insufficient.Have)
	require.Equal(t, 100, insufficient.Need)
}

func TestCalibrateVasicek_ShortSpan(t *testing.T) {
	t.Parallel()

	// 150 observations three days apart cover well under two years.
	path := ouPath(2, 150, 1, 0.1, 0.02, 0.1, 7.0/365.0)
	s := make(calibration.Series, len(path))
	for i, r := range path {
		s[i] = calibration.Observation{Date: day(2022, 1, 3).AddDate(0, 0, 3*i), Rate: rates.ToEffectiveAnnual(r)}
	}
	_, err := calibration.CalibrateVasicek(context.Background(), "Housing", s, config.DefaultConfig, nil)

	var insufficient *calibration.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 150, insufficient.Have)
	require.InDelta(t, 447.0/365.0, insufficient.SpanYears, 1e-12)
	require.Equal(t, 2.0, insufficient.NeedYears)
	require.Contains(t, err.Error(), "spans 1.22 years")

	cfg := config.DefaultConfig
	cfg.MinSpanYears = 0
	_, err = calibration.CalibrateVasicek(context.Background(), "Housing", s, cfg, nil)
	require.False(t, errors.As(err, &insufficient))
}

func TestCalibrateVasicek_ConstantSeriesFails(t *testing.T) {
	t.Parallel()

	flat := make([]float64, 150)
	for i := range flat {
		flat[i] = math.Log(1.08)
	}
	_, err := calibration.CalibrateVasicek(context.Background(), "Commercial",
		weeklySeries(day(2020, 1, 3), flat), config.DefaultConfig, nil)

	var calErr *calibration.CalibrationError
	require.ErrorAs(t, err, &calErr)
	require.Equal(t, calibration.Vasicek, calErr.Model)
}

func TestCalibrateVasicek_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := ouPath(3, 200, 1, 0.1, 0.02, 0.1, 7.0/365.0)
	_, err := calibration.CalibrateVasicek(ctx, "Consumer", weeklySeries(day(2020, 1, 3), path), config.DefaultConfig, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalibrateVasicek_RejectsUnorderedSeries(t *testing.T) {
	t.Parallel()

	path := ouPath(3, 120, 1, 0.1, 0.02, 0.1, 7.0/365.0)
	s := weeklySeries(day(2020, 1, 3), path)
	s[10].Date = s[9].Date
	_, err := calibration.CalibrateVasicek(context.Background(), "Consumer", s, config.DefaultConfig, nil)
	require.Error(t, err)
}

func TestStress_Vasicek(t *testing.T) {
	t.Parallel()

	base := calibration.Params{Model: calibration.Vasicek, Kappa: 1, Theta: 0.1, Sigma: 0.02, StressMultiplier: 1}
	stressed, err := base.Stress(1.25)
	require.NoError(t, err)
	require.InDelta(t, 0.025, stressed.Sigma, 1e-15)
	require.Equal(t, base.Kappa, stressed.Kappa)
	require.Equal(t, base.Theta, stressed.Theta)
	require.True(t, stressed.IsStressed())
	require.Equal(t, 0.02, base.Sigma)

	_, err = base.Stress(0)
	require.Error(t, err)
}

// hwHistory builds daily snapshots whose overnight node follows an OU path.
// Every snapshot also quotes the given term tenors on a flat term structure.
func hwHistory(t *testing.T, n int, a, sigma float64, terms []int) (*curve.History, time.Time) {
	t.Helper()

	theta := math.Log(1.09)
	path := ouPath(11, n, a, theta, sigma, theta, 1.0/365.0)
	start := day(2020, 1, 1)
	snaps := make([]*curve.Curve, n)
	for i, r := range path {
		nodes := []curve.Node{{TenorDays: 1, Rate: rates.ToEffectiveAnnual(r)}}
		for _, days := range terms {
			nodes = append(nodes, curve.Node{TenorDays: days, Rate: 0.095})
		}
		c, err := curve.New("COP", start.AddDate(0, 0, i), nodes)
		require.NoError(t, err)
		snaps[i] = c
	}
	h, err := curve.NewHistory("COP", snaps)
	require.NoError(t, err)
	return h, start.AddDate(0, 0, n-1)
}

func TestCalibrateHullWhite(t *testing.T) {
	t.Parallel()

	cutoff := day(2020, 1, 1).AddDate(0, 0, 1499)
	evals := []time.Time{cutoff.AddDate(0, 0, 30), cutoff.AddDate(0, 0, 61), cutoff.AddDate(0, 0, 91)}
	h, gotCutoff := hwHistory(t, 1500, 20, 0.05, []int{30, 61, 91})
	require.Equal(t, cutoff, gotCutoff)

	p, err := calibration.CalibrateHullWhite(context.Background(), calibration.HullWhiteInput{
		Subject:         "HW-1",
		History:         h,
		Cutoff:          cutoff,
		EvaluationDates: evals,
	}, config.DefaultConfig, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Equal(t, calibration.HullWhite, p.Model)
	require.Greater(t, p.Kappa, 5.0)
	require.Less(t, p.Kappa, 40.0)
	require.InEpsilon(t, 0.05, p.Sigma, 0.10)
	require.NotNil(t, p.Drift)
	require.Len(t, p.Drift.Times, 5) // t=0, 1d and three evaluation tenors
	require.InDelta(t, p.R0, p.Drift.Phi[0], 1e-15)
	require.InDelta(t, 30.0/365.0, p.Drift.Times[2], 1e-15)
	require.Len(t, p.Fit.Observed, 1499)

	stressed, err := p.Stress(1.25)
	require.NoError(t, err)
	require.InDelta(t, 1.25*p.Sigma, stressed.Sigma, 1e-15)
	require.NotSame(t, p.Drift, stressed.Drift)
	require.Greater(t, stressed.Drift.Theta[4], p.Drift.Theta[4])
	require.Equal(t, p.Drift.Forward, stressed.Drift.Forward)
}

func TestCalibrateHullWhite_MissingNode(t *testing.T) {
	t.Parallel()

	h, cutoff := hwHistory(t, 150, 20, 0.05, []int{30, 61})
	_, err := calibration.CalibrateHullWhite(context.Background(), calibration.HullWhiteInput{
		Subject:         "HW-2",
		History:         h,
		Cutoff:          cutoff,
		EvaluationDates: []time.Time{cutoff.AddDate(0, 0, 30), cutoff.AddDate(0, 0, 45)},
	}, config.DefaultConfig, nil)

	var missing *curve.MissingNodeError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, 45, missing.TenorDays)
}

func TestCalibrateHullWhite_RequiresCurveOnCutoff(t *testing.T) {
	t.Parallel()

	h, last := hwHistory(t, 1500, 20, 0.05, []int{30, 31})
	cutoff := last.AddDate(0, 0, 1)
	_, err := calibration.CalibrateHullWhite(context.Background(), calibration.HullWhiteInput{
		Subject:         "HW-4",
		History:         h,
		Cutoff:          cutoff,
		EvaluationDates: []time.Time{cutoff.AddDate(0, 0, 30)},
	}, config.DefaultConfig, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no COP curve dated on cutoff")
}

func TestCalibrateHullWhite_InsufficientHistory(t *testing.T) {
	t.Parallel()

	h, cutoff := hwHistory(t, 60, 20, 0.05, []int{30})
	_, err := calibration.CalibrateHullWhite(context.Background(), calibration.HullWhiteInput{
		Subject:         "HW-3",
		History:         h,
		Cutoff:          cutoff,
		EvaluationDates: []time.Time{cutoff.AddDate(0, 0, 30)},
	}, config.DefaultConfig, nil)

	var insufficient *calibration.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 60, insufficient.Have)
}

func TestCalibrateHullWhite_NonRevertingFails(t *testing.T) {
	t.Parallel()

	// A steadily rising overnight rate regresses to a non-positive a.
	start := day(2020, 1, 1)
	snaps := make([]*curve.Curve, 150)
	for i := range snaps {
		c, err := curve.New("USD", start.AddDate(0, 0, i), []curve.Node{
			{TenorDays: 1, Rate: 0.02 + 0.0001*float64(i) + 0.00001*float64(i*i)},
			{TenorDays: 30, Rate: 0.05},
		})
		require.NoError(t, err)
		snaps[i] = c
	}
	h, err := curve.NewHistory("USD", snaps)
	require.NoError(t, err)
	cutoff := start.AddDate(0, 0, 149)

	_, err = calibration.CalibrateHullWhite(context.Background(), calibration.HullWhiteInput{
		Subject:         "HW-4",
		History:         h,
		Cutoff:          cutoff,
		EvaluationDates: []time.Time{cutoff.AddDate(0, 0, 30)},
	}, config.DefaultConfig, nil)

	var calErr *calibration.CalibrationError
	require.ErrorAs(t, err, &calErr)
	require.Equal(t, calibration.HullWhite, calErr.Model)
}
