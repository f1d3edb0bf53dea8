// Package scenario holds one simulated rate trajectory: a Vasicek path or a
// root-to-leaf lattice branch.
package scenario

import (
	"fmt"
	"sort"
	"time"

	"github.com/meenmo/prepaysim/utils"
)

// Stress tags a scenario as produced with base or stressed volatility.
type Stress string

const (
	Base     Stress = "base"
	Stressed Stress = "stressed"
)

// StressFor maps a stress multiplier to its tag.
func StressFor(multiplier float64) Stress {
	if multiplier == 1 {
		return Base
	}
	return Stressed
}

// Point is one simulated rate.
type Point struct {
	Date            time.Time
	ShortRate       float64
	EffectiveAnnual float64
}

// Scenario is an ordered sequence of simulated points.
//
// Weight is the scenario's share of the scenario set: 1/N for Monte Carlo
// paths and sampled branches, the branch probability for enumerated branches.
type Scenario struct {
	ID     int
	Stress Stress
	Weight float64
	Points []Point
}

// Dates returns the point dates in order.
func (s Scenario) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}

// RateAt returns the simulated EA at date. Dates between two points are
// interpolated linearly in EA; dates outside the scenario are an error.
func (s Scenario) RateAt(date time.Time) (float64, error) {
	n := len(s.Points)
	if n == 0 {
		return 0, fmt.Errorf("scenario %d: no points", s.ID)
	}
	first, last := s.Points[0].Date, s.Points[n-1].Date
	if date.Before(first) || date.After(last) {
		return 0, fmt.Errorf("scenario %d: date %s outside [%s, %s]", s.ID,
			date.Format(utils.DateLayout), first.Format(utils.DateLayout), last.Format(utils.DateLayout))
	}
	if n == 1 {
		return s.Points[0].EffectiveAnnual, nil
	}

	// First point on or after date.
	i := sort.Search(n, func(i int) bool { return !s.Points[i].Date.Before(date) })
	if s.Points[i].Date.Equal(date) {
		return s.Points[i].EffectiveAnnual, nil
	}
	p0, p1 := s.Points[i-1], s.Points[i]
	span := p1.Date.Sub(p0.Date).Hours()
	w := date.Sub(p0.Date).Hours() / span
	return p0.EffectiveAnnual + w*(p1.EffectiveAnnual-p0.EffectiveAnnual), nil
}
