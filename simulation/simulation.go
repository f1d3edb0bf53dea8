// Package simulation generates Monte Carlo short-rate trajectories for the
// Vasicek model on a fixed weekly grid.
package simulation

import (
	"fmt"
	"iter"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/utils"
)

// Options controls path generation.
type Options struct {
	// Paths is the number of trajectories per scenario set.
	Paths int
	// StepDays is the grid spacing in days.
	StepDays int
	// Seed fixes the random stream. Zero draws a fresh seed on every
	// iteration of Scenarios, so the sequence is not reproducible.
	Seed uint64
}

// PathSimulator draws Euler paths of dr = κ(θ − r)dt + σ dW from the cutoff to
// the horizon. It holds no mutable state and is safe for concurrent use.
type PathSimulator struct {
	params  calibration.Params
	dates   []time.Time
	dt      float64
	paths   int
	seed    uint64
	stress  scenario.Stress
	initial float64
}

// NewPathSimulator lays out the grid: start, start+step, ... up to the first
// grid date on or after horizon.
func NewPathSimulator(p calibration.Params, start, horizon time.Time, opts Options) (*PathSimulator, error) {
	if p.Model != calibration.Vasicek {
		return nil, fmt.Errorf("NewPathSimulator: model %q is not %q", p.Model, calibration.Vasicek)
	}
	if p.Kappa <= 0 || p.Sigma <= 0 {
		return nil, fmt.Errorf("NewPathSimulator: kappa and sigma must be positive (kappa=%g, sigma=%g)", p.Kappa, p.Sigma)
	}
	if opts.Paths <= 0 {
		return nil, fmt.Errorf("NewPathSimulator: paths must be positive, got %d", opts.Paths)
	}
	if opts.StepDays <= 0 {
		return nil, fmt.Errorf("NewPathSimulator: step days must be positive, got %d", opts.StepDays)
	}
	if !horizon.After(start) {
		return nil, fmt.Errorf("NewPathSimulator: horizon %s is not after start %s",
			horizon.Format(utils.DateLayout), start.Format(utils.DateLayout))
	}

	dates := []time.Time{start}
	for d := start; d.Before(horizon); {
		d = d.AddDate(0, 0, opts.StepDays)
		dates = append(dates, d)
	}

	return &PathSimulator{
		params:  p,
		dates:   dates,
		dt:      utils.TenorYears(opts.StepDays),
		paths:   opts.Paths,
		seed:    opts.Seed,
		stress:  scenario.StressFor(p.StressMultiplier),
		initial: p.R0,
	}, nil
}

// Steps returns the number of grid intervals.
func (s *PathSimulator) Steps() int {
	return len(s.dates) - 1
}

// Path draws trajectory i from the stream seeded by seed. Paths with distinct
// indices use independent streams.
func (s *PathSimulator) Path(seed uint64, i int) scenario.Scenario {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(MixSeed(seed, uint64(i)))}

	kappa, theta := s.params.Kappa, s.params.Theta
	diffusion := s.params.Sigma * math.Sqrt(s.dt)

	points := make([]scenario.Point, len(s.dates))
	r := s.initial
	points[0] = scenario.Point{Date: s.dates[0], ShortRate: r, EffectiveAnnual: rates.ToEffectiveAnnual(r)}
	for k := 1; k < len(s.dates); k++ {
		r += kappa*(theta-r)*s.dt + diffusion*norm.Rand()
		points[k] = scenario.Point{Date: s.dates[k], ShortRate: r, EffectiveAnnual: rates.ToEffectiveAnnual(r)}
	}
	return scenario.Scenario{
		ID:     i,
		Stress: s.stress,
		Weight: 1 / float64(s.paths),
		Points: points,
	}
}

// Scenarios yields the configured number of paths lazily.
func (s *PathSimulator) Scenarios() iter.Seq[scenario.Scenario] {
	return func(yield func(scenario.Scenario) bool) {
		seed := s.seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		for i := 0; i < s.paths; i++ {
			if !yield(s.Path(seed, i)) {
				return
			}
		}
	}
}

// MixSeed derives an independent seed from seed and salt (splitmix64 finaliser).
func MixSeed(seed, salt uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15*(salt+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
