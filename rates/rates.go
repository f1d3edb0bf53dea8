// Package rates converts between annual effective (EA) rates and
// continuously-compounded short rates.
//
// All rates are decimals (0.125 == 12.5%). The functions are defined for
// ea > -1; outside that domain they return NaN.
package rates

import "math"

// ToShortRate maps an annual effective rate to the instantaneous rate ln(1+ea).
func ToShortRate(ea float64) float64 {
	if ea <= -1 {
		return math.NaN()
	}
	return math.Log1p(ea)
}

// ToEffectiveAnnual maps a short rate back to the annual effective rate exp(r)-1.
func ToEffectiveAnnual(shortRate float64) float64 {
	return math.Expm1(shortRate)
}

// ZeroCouponPrice returns P(0,t) = (1+ea)^(-t) for t in years.
func ZeroCouponPrice(ea, t float64) float64 {
	if ea <= -1 {
		return math.NaN()
	}
	return math.Exp(-t * math.Log1p(ea))
}

// ForwardFromPrice returns f(0,t) = -ln(P(0,t))/t.
//
// t must be strictly positive; callers proxy t=0 with a one-day tenor.
func ForwardFromPrice(price, t float64) float64 {
	if t <= 0 || price <= 0 {
		return math.NaN()
	}
	return -math.Log(price) / t
}
