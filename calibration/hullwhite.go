package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/meenmo/prepaysim/config"
	"github.com/meenmo/prepaysim/curve"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/utils"
)

// OvernightTenorDays is the node used both as the historical short-rate proxy
// and as r₀ = f(0, 1 day).
const OvernightTenorDays = 1

// HullWhiteInput is everything a single-credit Hull-White calibration needs.
type HullWhiteInput struct {
	// Subject identifies the credit in errors and logs.
	Subject string
	History *curve.History
	Cutoff  time.Time
	// EvaluationDates are the credit's evaluation dates after Cutoff. The
	// cutoff curve must quote each of their day counts exactly.
	EvaluationDates []time.Time
}

// CalibrateHullWhite fits (a, σ) by OLS of Δr/Δt on r over the currency's
// overnight history, then builds θ(t) and φ(t) on the credit's own forward
// nodes. The result is specific to this credit.
func CalibrateHullWhite(ctx context.Context, in HullWhiteInput, cfg config.Config, log *zap.Logger) (Params, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if in.History == nil {
		return Params{}, fmt.Errorf("CalibrateHullWhite: %s: curve history is required", in.Subject)
	}
	if len(in.EvaluationDates) == 0 {
		return Params{}, fmt.Errorf("CalibrateHullWhite: %s: evaluation dates are required", in.Subject)
	}

	dates, ea, err := in.History.Series(OvernightTenorDays, in.Cutoff)
	if err != nil {
		return Params{}, err
	}
	if len(ea) < cfg.MinObservations {
		return Params{}, &InsufficientDataError{Subject: in.Subject, Have: len(ea), Need: cfg.MinObservations}
	}
	if err := ctx.Err(); err != nil {
		return Params{}, &CalibrationError{Model: HullWhite, Subject: in.Subject, Reason: "cancelled", Err: err}
	}

	n := len(ea) - 1
	level := make([]float64, n)
	speed := make([]float64, n)
	steps := make([]float64, n)
	for i := 0; i < n; i++ {
		r0, r1 := rates.ToShortRate(ea[i]), rates.ToShortRate(ea[i+1])
		h := utils.YearFraction(dates[i], dates[i+1])
		level[i] = r0
		speed[i] = (r1 - r0) / h
		steps[i] = h
	}

	alpha, beta := stat.LinearRegression(level, speed, nil, false)
	a := -beta
	resid := make([]float64, n)
	fit := Fit{
		Dates:    dates[1:],
		Observed: make([]float64, n),
		Fitted:   make([]float64, n),
	}
	for i := range level {
		resid[i] = speed[i] - (alpha + beta*level[i])
		fit.Observed[i] = level[i] + speed[i]*steps[i]
		fit.Fitted[i] = level[i] + (alpha+beta*level[i])*steps[i]
	}
	sigma := math.Sqrt(stat.Variance(resid, nil) * stat.Mean(steps, nil))
	if err := checkBounds(HullWhite, in.Subject, a, sigma, cfg.MaxShortRateSigma); err != nil {
		return Params{}, err
	}

	cutoffCurve, err := in.History.AsOf(in.Cutoff)
	if err != nil {
		return Params{}, err
	}
	// Tenors are counted from the cutoff, so the curve must be quoted on it.
	if !cutoffCurve.Date().Equal(in.Cutoff) {
		return Params{}, fmt.Errorf("CalibrateHullWhite: %s: no %s curve dated on cutoff %s (latest is %s)",
			in.Subject, in.History.Currency(), in.Cutoff.Format(utils.DateLayout), cutoffCurve.Date().Format(utils.DateLayout))
	}
	tenors := []int{OvernightTenorDays}
	for _, d := range in.EvaluationDates {
		days := utils.DaysBetween(in.Cutoff, d)
		if days <= 0 {
			return Params{}, fmt.Errorf("CalibrateHullWhite: %s: evaluation date %s is not after cutoff %s",
				in.Subject, d.Format(utils.DateLayout), in.Cutoff.Format(utils.DateLayout))
		}
		tenors = append(tenors, days)
	}
	nodes, err := cutoffCurve.ForwardNodes(tenors)
	if err != nil {
		return Params{}, err
	}
	r0 := nodes[0].Forward

	drift := NewDrift(a, sigma, nodes, r0)

	log.Info("hull-white calibrated",
		zap.String("subject", in.Subject),
		zap.Int("observations", len(ea)),
		zap.Float64("a", a),
		zap.Float64("sigma", sigma),
		zap.Float64("r0", r0),
		zap.Int("nodes", len(nodes)))

	return Params{
		Model:            HullWhite,
		Space:            ShortRateSpace,
		Kappa:            a,
		Theta:            alpha / a,
		Sigma:            sigma,
		R0:               r0,
		StressMultiplier: 1,
		Drift:            drift,
		Fit:              fit,
	}, nil
}
