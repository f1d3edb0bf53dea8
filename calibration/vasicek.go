package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/meenmo/prepaysim/config"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/utils"
)

// Observation is one dated annual effective rate.
type Observation struct {
	Date time.Time
	Rate float64
}

// Series is an ordered historical EA series.
type Series []Observation

// Last returns the most recent observation.
func (s Series) Last() (Observation, bool) {
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// Until returns the observations dated on or before cutoff.
func (s Series) Until(cutoff time.Time) Series {
	out := make(Series, 0, len(s))
	for _, o := range s {
		if !o.Date.After(cutoff) {
			out = append(out, o)
		}
	}
	return out
}

func (s Series) validate(subject string) error {
	for i, o := range s {
		if !finite(o.Rate) || o.Rate <= -1 {
			return fmt.Errorf("calibration %s: observation %d (%s) has invalid rate %g",
				subject, i, o.Date.Format(utils.DateLayout), o.Rate)
		}
		if i > 0 && !o.Date.After(s[i-1].Date) {
			return fmt.Errorf("calibration %s: observation dates must be strictly increasing (index %d)", subject, i)
		}
	}
	return nil
}

const (
	vasicekKappaStart = 0.2
	vasicekSigmaFloor = 1e-4
	// convergeWindow is the number of major iterations without NLL improvement
	// that counts as convergence.
	convergeWindow = 50
)

// CalibrateVasicek fits (κ, θ, σ) of dr = κ(θ − r)dt + σ dW by maximum
// likelihood on the short-rate transform of series, sampled every
// cfg.VasicekStepDays days.
//
// The search runs on (ln κ, θ, ln σ) so positivity holds by construction; the
// bounds are still checked on the result. ctx cancellation stops the optimiser.
func CalibrateVasicek(ctx context.Context, subject string, series Series, cfg config.Config, log *zap.Logger) (Params, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(series) < cfg.MinObservations {
		return Params{}, &InsufficientDataError{Subject: subject, Have: len(series), Need: cfg.MinObservations}
	}
	if err := series.validate(subject); err != nil {
		return Params{}, err
	}
	if span := utils.YearFraction(series[0].Date, series[len(series)-1].Date); span < cfg.MinSpanYears {
		return Params{}, &InsufficientDataError{
			Subject:   subject,
			Have:      len(series),
			Need:      cfg.MinObservations,
			SpanYears: span,
			NeedYears: cfg.MinSpanYears,
		}
	}

	r := make([]float64, len(series))
	for i, o := range series {
		r[i] = rates.ToShortRate(o.Rate)
	}
	dt := utils.TenorYears(cfg.VasicekStepDays)

	dr := make([]float64, len(r)-1)
	for i := range dr {
		dr[i] = r[i+1] - r[i]
	}
	theta0 := stat.Mean(r, nil)
	sigma0 := math.Max(stat.StdDev(dr, nil)/math.Sqrt(dt), vasicekSigmaFloor)
	x0 := []float64{math.Log(vasicekKappaStart), theta0, math.Log(sigma0)}

	nll := func(x []float64) float64 {
		return vasicekNLL(math.Exp(x[0]), x[1], math.Exp(x[2]), r, dt)
	}
	log.Debug("vasicek calibration start",
		zap.String("subject", subject),
		zap.Int("observations", len(r)),
		zap.Float64("kappa0", vasicekKappaStart),
		zap.Float64("theta0", theta0),
		zap.Float64("sigma0", sigma0),
		zap.Float64("nll0", nll(x0)))

	res, err := minimize(ctx, nll, x0, cfg)
	if err != nil {
		return Params{}, &CalibrationError{Model: Vasicek, Subject: subject, Reason: "optimiser did not converge", Err: err}
	}

	kappa, theta, sigma := math.Exp(res.X[0]), res.X[1], math.Exp(res.X[2])
	if err := checkBounds(Vasicek, subject, kappa, sigma, cfg.MaxShortRateSigma); err != nil {
		return Params{}, err
	}
	if !finite(theta) {
		return Params{}, &CalibrationError{Model: Vasicek, Subject: subject, Reason: "long-run level is not finite"}
	}

	fit := Fit{
		Dates:    make([]time.Time, 0, len(r)-1),
		Observed: make([]float64, 0, len(r)-1),
		Fitted:   make([]float64, 0, len(r)-1),
	}
	decay := math.Exp(-kappa * dt)
	for i := 1; i < len(r); i++ {
		fit.Dates = append(fit.Dates, series[i].Date)
		fit.Observed = append(fit.Observed, r[i])
		fit.Fitted = append(fit.Fitted, theta+(r[i-1]-theta)*decay)
	}

	log.Info("vasicek calibrated",
		zap.String("subject", subject),
		zap.Float64("kappa", kappa),
		zap.Float64("theta", theta),
		zap.Float64("theta_ea", rates.ToEffectiveAnnual(theta)),
		zap.Float64("sigma", sigma),
		zap.Float64("nll", res.F),
		zap.Int("iterations", res.Stats.MajorIterations))

	return Params{
		Model:            Vasicek,
		Space:            ShortRateSpace,
		Kappa:            kappa,
		Theta:            theta,
		Sigma:            sigma,
		R0:               r[len(r)-1],
		StressMultiplier: 1,
		Fit:              fit,
	}, nil
}

// vasicekNLL is the negative log-likelihood of the exact OU transition:
//
//	E[r(t+Δ) | r(t)]   = θ + (r(t) − θ)e^{−κΔ}
//	Var[r(t+Δ) | r(t)] = σ²/(2κ)(1 − e^{−2κΔ})
func vasicekNLL(kappa, theta, sigma float64, r []float64, dt float64) float64 {
	if !finite(kappa) || !finite(theta) || !finite(sigma) || kappa <= 0 || sigma <= 0 {
		return math.Inf(1)
	}
	decay := math.Exp(-kappa * dt)
	variance := sigma * sigma / (2 * kappa) * (1 - math.Exp(-2*kappa*dt))
	if !finite(variance) || variance <= 0 {
		return math.Inf(1)
	}
	logTerm := math.Log(2 * math.Pi * variance)
	total := 0.0
	for i := 1; i < len(r); i++ {
		mean := theta + (r[i-1]-theta)*decay
		d := r[i] - mean
		total += logTerm + d*d/variance
	}
	return 0.5 * total
}

// minimize runs Nelder-Mead and returns an error unless the run converged.
func minimize(ctx context.Context, f func([]float64) float64, x0 []float64, cfg config.Config) (*optimize.Result, error) {
	problem := optimize.Problem{
		Func: f,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   cfg.ConvergenceTolerance,
			Iterations: convergeWindow,
		},
	}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.FunctionThreshold,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
	default:
		return nil, fmt.Errorf("terminated with status %s after %d iterations", res.Status, res.Stats.MajorIterations)
	}
	if !finite(res.F) {
		return nil, fmt.Errorf("objective is not finite at the optimum")
	}
	return res, nil
}
