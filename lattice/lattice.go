// Package lattice builds the recombining Hull-White trinomial tree on a
// credit's own evaluation dates.
//
// The tree models the zero-mean deviation x in r(t) = φ(t) + x(t). Nodes are
// stored in an arena indexed by (step, level) with x = level·Δx_k, so paths
// that reach the same level at a step share one node.
package lattice

import (
	"fmt"
	"iter"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/utils"
)

// Probabilities are the transition probabilities out of one node.
type Probabilities struct {
	Up, Mid, Down float64
}

// Sum returns Up + Mid + Down.
func (p Probabilities) Sum() float64 {
	return p.Up + p.Mid + p.Down
}

// TransitionProbabilities evaluates the branching probabilities for the
// normalised drift alpha, clamped to [-1, 1]:
//
//	p_up   = 1/6 + α²/2 + α/2
//	p_mid  = 2/3 − α²
//	p_down = 1/6 + α²/2 − α/2
//
// A sum outside [1−tol, 1+tol] or a probability below −tol is an error.
// Lattices built here centre each node on the level nearest its conditional
// mean, which keeps |α| ≤ 1/2 and every probability positive.
func TransitionProbabilities(alpha, tol float64) (Probabilities, error) {
	if math.IsNaN(alpha) {
		return Probabilities{}, fmt.Errorf("TransitionProbabilities: alpha is NaN")
	}
	alpha = math.Max(-1, math.Min(1, alpha))
	a2 := alpha * alpha
	p := Probabilities{
		Up:   1.0/6 + a2/2 + alpha/2,
		Mid:  2.0/3 - a2,
		Down: 1.0/6 + a2/2 - alpha/2,
	}
	if s := p.Sum(); math.Abs(s-1) > tol {
		return Probabilities{}, fmt.Errorf("TransitionProbabilities: alpha=%g: probabilities sum to %.15g", alpha, s)
	}
	if p.Up < -tol || p.Mid < -tol || p.Down < -tol {
		return Probabilities{}, fmt.Errorf("TransitionProbabilities: alpha=%g: negative probability (up=%g, mid=%g, down=%g)",
			alpha, p.Up, p.Mid, p.Down)
	}
	return p, nil
}

// Node is one lattice node.
type Node struct {
	Level           int
	X               float64
	ShortRate       float64
	EffectiveAnnual float64
	// Central is the middle child's level at the next step; children sit at
	// Central-1, Central and Central+1. Unused on the last step.
	Central int
	Alpha   float64
	Prob    Probabilities

	reached bool
}

// Lattice is an immutable trinomial tree. Step 0 is the cutoff; step k ≥ 1 is
// the k-th evaluation date.
type Lattice struct {
	dates  []time.Time
	times  []float64
	dx     []float64
	lo     []int
	nodes  [][]Node
	stress scenario.Stress
}

// Build grows the tree from x = 0 at cutoff through dates, which must be
// strictly increasing and after cutoff. p must carry a Hull-White drift.
func Build(p calibration.Params, cutoff time.Time, dates []time.Time, tol float64) (*Lattice, error) {
	if p.Drift == nil {
		return nil, fmt.Errorf("lattice.Build: parameters carry no drift (model %q)", p.Model)
	}
	if p.Kappa <= 0 || p.Sigma <= 0 {
		return nil, fmt.Errorf("lattice.Build: a and sigma must be positive (a=%g, sigma=%g)", p.Kappa, p.Sigma)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("lattice.Build: no evaluation dates")
	}

	n := len(dates)
	l := &Lattice{
		dates:  make([]time.Time, n+1),
		times:  make([]float64, n+1),
		dx:     make([]float64, n+1),
		lo:     make([]int, n+1),
		nodes:  make([][]Node, n+1),
		stress: scenario.StressFor(p.StressMultiplier),
	}
	l.dates[0] = cutoff
	for k, d := range dates {
		if !d.After(l.dates[k]) {
			return nil, fmt.Errorf("lattice.Build: evaluation date %s is not after %s",
				d.Format(utils.DateLayout), l.dates[k].Format(utils.DateLayout))
		}
		l.dates[k+1] = d
		l.times[k+1] = utils.YearFraction(cutoff, d)
		l.dx[k+1] = p.Sigma * math.Sqrt(3*(l.times[k+1]-l.times[k]))
	}

	l.nodes[0] = []Node{{reached: true}}
	l.fill(0, p)
	for k := 0; k < n; k++ {
		dt := l.times[k+1] - l.times[k]
		next := l.dx[k+1]
		lo, hi := math.MaxInt, math.MinInt
		for i := range l.nodes[k] {
			node := &l.nodes[k][i]
			if !node.reached {
				continue
			}
			mean := node.X - p.Kappa*node.X*dt
			node.Central = int(math.Round(mean / next))
			node.Alpha = (mean - float64(node.Central)*next) / next
			prob, err := TransitionProbabilities(node.Alpha, tol)
			if err != nil {
				return nil, fmt.Errorf("lattice.Build: step %d level %d: %w", k, node.Level, err)
			}
			node.Prob = prob
			lo = min(lo, node.Central-1)
			hi = max(hi, node.Central+1)
		}

		l.lo[k+1] = lo
		l.nodes[k+1] = make([]Node, hi-lo+1)
		for _, node := range l.nodes[k] {
			if !node.reached {
				continue
			}
			for j := node.Central - 1; j <= node.Central+1; j++ {
				l.nodes[k+1][j-lo].reached = true
			}
		}
		l.fill(k+1, p)
	}
	return l, nil
}

// fill sets level, x and rates on the reached nodes of step k.
func (l *Lattice) fill(k int, p calibration.Params) {
	phi := p.Drift.PhiAt(l.times[k])
	for i := range l.nodes[k] {
		node := &l.nodes[k][i]
		if !node.reached {
			continue
		}
		node.Level = l.lo[k] + i
		node.X = float64(node.Level) * l.dx[k]
		node.ShortRate = phi + node.X
		node.EffectiveAnnual = rates.ToEffectiveAnnual(node.ShortRate)
	}
}

// Steps returns the number of evaluation dates.
func (l *Lattice) Steps() int {
	return len(l.dates) - 1
}

// Dates returns the cutoff followed by the evaluation dates.
func (l *Lattice) Dates() []time.Time {
	return append([]time.Time(nil), l.dates...)
}

// Node returns the node at (step, level).
func (l *Lattice) Node(step, level int) (Node, bool) {
	if step < 0 || step >= len(l.nodes) {
		return Node{}, false
	}
	i := level - l.lo[step]
	if i < 0 || i >= len(l.nodes[step]) || !l.nodes[step][i].reached {
		return Node{}, false
	}
	return l.nodes[step][i], true
}

// NodeCount returns the number of distinct reachable nodes.
func (l *Lattice) NodeCount() int {
	count := 0
	for _, step := range l.nodes {
		for _, node := range step {
			if node.reached {
				count++
			}
		}
	}
	return count
}

// BranchCount returns 3^Steps, the number of root-to-leaf branches,
// saturating at math.MaxInt.
func (l *Lattice) BranchCount() int {
	count := 1
	for range l.Steps() {
		if count > math.MaxInt/3 {
			return math.MaxInt
		}
		count *= 3
	}
	return count
}

// Branches enumerates every root-to-leaf branch. Branch b takes, at step k,
// the move given by the k-th base-3 digit of b (0 down, 1 mid, 2 up). Its
// weight is the product of the transition probabilities along it.
func (l *Lattice) Branches() iter.Seq[scenario.Scenario] {
	total := l.BranchCount()
	return func(yield func(scenario.Scenario) bool) {
		for b := 0; b < total; b++ {
			digits := b
			s := l.walk(b, func(Node) int {
				d := digits % 3
				digits /= 3
				return d
			})
			if !yield(s) {
				return
			}
		}
	}
}

// Sample draws n branches by following the transition probabilities from the
// root. Each sampled branch has weight 1/n.
func (l *Lattice) Sample(seed uint64, n int) iter.Seq[scenario.Scenario] {
	return func(yield func(scenario.Scenario) bool) {
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < n; i++ {
			s := l.walk(i, func(node Node) int {
				u := rng.Float64()
				switch {
				case u < node.Prob.Down:
					return 0
				case u < node.Prob.Down+node.Prob.Mid:
					return 1
				default:
					return 2
				}
			})
			s.Weight = 1 / float64(n)
			if !yield(s) {
				return
			}
		}
	}
}

// walk follows moves chosen by next (0 down, 1 mid, 2 up) from the root.
func (l *Lattice) walk(id int, next func(Node) int) scenario.Scenario {
	points := make([]scenario.Point, len(l.dates))
	weight := 1.0
	level := 0
	for k := range l.dates {
		node := l.nodes[k][level-l.lo[k]]
		points[k] = scenario.Point{Date: l.dates[k], ShortRate: node.ShortRate, EffectiveAnnual: node.EffectiveAnnual}
		if k == len(l.dates)-1 {
			break
		}
		switch next(node) {
		case 0:
			weight *= node.Prob.Down
			level = node.Central - 1
		case 1:
			weight *= node.Prob.Mid
			level = node.Central
		default:
			weight *= node.Prob.Up
			level = node.Central + 1
		}
	}
	return scenario.Scenario{ID: id, Stress: l.stress, Weight: weight, Points: points}
}
