package calibration

import (
	"math"
	"sort"

	"github.com/meenmo/prepaysim/curve"
)

// Drift is the Hull-White no-arbitrage drift on the credit's own time grid.
//
// Times[0] is 0 (the cutoff). r(t) = φ(t) + x(t), where x is the zero-mean
// reverting deviation and φ solves φ'(t) + aφ(t) = θ(t) with φ(0) = r₀.
type Drift struct {
	Times   []float64
	Forward []float64
	Theta   []float64
	Phi     []float64

	nodes []curve.ForwardNode
}

// NewDrift builds θ(t) = ∂f/∂t + a·f + σ²/(2a)·(1 − e^{−2at}) from the
// filtered forward nodes and integrates φ from r0.
func NewDrift(a, sigma float64, nodes []curve.ForwardNode, r0 float64) *Drift {
	n := len(nodes) + 1
	d := &Drift{
		Times:   make([]float64, n),
		Forward: make([]float64, n),
		Theta:   make([]float64, n),
		Phi:     make([]float64, n),
		nodes:   nodes,
	}
	d.Forward[0] = r0
	for i, node := range nodes {
		d.Times[i+1] = node.Time
		d.Forward[i+1] = node.Forward
	}

	slope := gradient(d.Times, d.Forward)
	for i, t := range d.Times {
		d.Theta[i] = slope[i] + a*d.Forward[i] + sigma*sigma/(2*a)*(1-math.Exp(-2*a*t))
	}

	// Exponential integrator with trapezoidal θ over each interval.
	d.Phi[0] = r0
	for i := 1; i < n; i++ {
		h := d.Times[i] - d.Times[i-1]
		decay := math.Exp(-a * h)
		avg := 0.5 * (d.Theta[i-1] + d.Theta[i])
		d.Phi[i] = d.Phi[i-1]*decay + avg*(1-decay)/a
	}
	return d
}

// PhiAt returns φ(t), linear between grid points and flat outside the grid.
func (d *Drift) PhiAt(t float64) float64 {
	return interp(d.Times, d.Phi, t)
}

// ThetaAt returns θ(t), linear between grid points and flat outside the grid.
func (d *Drift) ThetaAt(t float64) float64 {
	return interp(d.Times, d.Theta, t)
}

func interp(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	w := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + w*(ys[i]-ys[i-1])
}

// gradient is a second-order finite difference on a non-uniform grid,
// one-sided at the ends.
func gradient(t, f []float64) []float64 {
	n := len(t)
	out := make([]float64, n)
	switch {
	case n < 2:
		return out
	case n == 2:
		s := (f[1] - f[0]) / (t[1] - t[0])
		out[0], out[1] = s, s
		return out
	}

	for i := 1; i < n-1; i++ {
		h1 := t[i] - t[i-1]
		h2 := t[i+1] - t[i]
		out[i] = -h2/(h1*(h1+h2))*f[i-1] + (h2-h1)/(h1*h2)*f[i] + h1/(h2*(h1+h2))*f[i+1]
	}

	h1, h2 := t[1]-t[0], t[2]-t[1]
	out[0] = -(2*h1+h2)/(h1*(h1+h2))*f[0] + (h1+h2)/(h1*h2)*f[1] - h1/(h2*(h1+h2))*f[2]

	h1, h2 = t[n-2]-t[n-3], t[n-1]-t[n-2]
	out[n-1] = h2/(h1*(h1+h2))*f[n-3] - (h1+h2)/(h1*h2)*f[n-2] + (2*h2+h1)/(h2*(h1+h2))*f[n-1]
	return out
}
