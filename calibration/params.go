// Package calibration estimates short-rate process parameters from historical
// rate data.
//
// Two strategies share the Params output: a population-level Vasicek
// maximum-likelihood fit per credit type, and a per-credit Hull-White fit
// (Ornstein-Uhlenbeck regression plus a no-arbitrage drift built from the
// credit's own forward nodes).
package calibration

import (
	"fmt"
	"math"
	"time"
)

// Model names a short-rate model.
type Model string

const (
	Vasicek   Model = "vasicek"
	HullWhite Model = "hull-white"
)

// ShortRateSpace tags parameters estimated on r = ln(1+EA).
const ShortRateSpace = "short-rate"

// Params is a calibrated parameter set. It is never mutated after
// calibration; Stress returns a new value.
type Params struct {
	Model Model
	Space string

	// Kappa is the mean-reversion speed (κ for Vasicek, a for Hull-White).
	Kappa float64
	// Theta is the long-run level in short-rate space. For Hull-White it is
	// the regression's implied level, informative only; Drift drives the model.
	Theta float64
	Sigma float64
	// R0 is the short rate at the cutoff.
	R0 float64

	// StressMultiplier is 1 for base parameters.
	StressMultiplier float64

	// Drift is the Hull-White time-dependent drift; nil for Vasicek.
	Drift *Drift

	// Fit carries the in-sample one-step fit for validation.
	Fit Fit
}

// Fit pairs observed short rates with their one-step-ahead model values.
type Fit struct {
	Dates    []time.Time
	Observed []float64
	Fitted   []float64
}

// Residuals returns observed minus fitted.
func (f Fit) Residuals() []float64 {
	out := make([]float64, len(f.Observed))
	for i := range f.Observed {
		out[i] = f.Observed[i] - f.Fitted[i]
	}
	return out
}

// IsStressed reports whether the parameters carry a stress multiplier.
func (p Params) IsStressed() bool {
	return p.StressMultiplier != 1
}

// Stress returns a copy with σ scaled by multiplier. Hull-White parameters
// get θ(t) and φ(t) re-derived for the new σ; the base Drift is untouched.
func (p Params) Stress(multiplier float64) (Params, error) {
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return Params{}, fmt.Errorf("Params.Stress: multiplier must be positive and finite, got %g", multiplier)
	}
	out := p
	out.Sigma = p.Sigma * multiplier
	out.StressMultiplier = p.StressMultiplier * multiplier
	if p.Drift != nil {
		out.Drift = NewDrift(p.Kappa, out.Sigma, p.Drift.nodes, p.R0)
	}
	return out, nil
}

// minSigma is the volatility treated as zero: a fit that collapses onto it
// has degenerate likelihood.
const minSigma = 1e-8

// checkBounds enforces κ > 0 and 0 < σ < maxSigma on a fresh calibration.
func checkBounds(model Model, subject string, kappa, sigma, maxSigma float64) error {
	if !finite(kappa) || !finite(sigma) {
		return &CalibrationError{Model: model, Subject: subject,
			Reason: fmt.Sprintf("non-finite estimate (kappa=%g, sigma=%g)", kappa, sigma)}
	}
	if kappa <= 0 {
		return &CalibrationError{Model: model, Subject: subject, Reason: fmt.Sprintf("mean reversion %.6g is not positive", kappa)}
	}
	if sigma <= minSigma {
		return &CalibrationError{Model: model, Subject: subject, Reason: fmt.Sprintf("volatility %.6g is not positive", sigma)}
	}
	if sigma >= maxSigma {
		return &CalibrationError{Model: model, Subject: subject, Reason: fmt.Sprintf("volatility %.6g is not below %.4g", sigma, maxSigma)}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
