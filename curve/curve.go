// Package curve holds per-currency discount curves quoted as annual effective
// rates by tenor in days.
//
// Lookups are exact: a tenor without a node is an error, never an interpolation.
package curve

import (
	"fmt"
	"sort"
	"time"

	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/utils"
)

// Node is one quoted point of a curve. Rate is an annual effective decimal.
type Node struct {
	TenorDays int
	Rate      float64
}

// ForwardNode is a curve node expressed as a zero-coupon price and the
// discrete forward rate derived from it.
type ForwardNode struct {
	TenorDays      int
	Time           float64 // years, ACT/365F
	DiscountFactor float64 // P(0,t) = (1+EA)^(-t)
	Forward        float64 // f(0,t) = -ln P(0,t) / t
}

// MissingNodeError reports a tenor that has no exact node on a curve.
type MissingNodeError struct {
	Currency  string
	CurveDate time.Time
	TenorDays int
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("curve %s@%s: no node for tenor %dd (exact match required)",
		e.Currency, e.CurveDate.Format(utils.DateLayout), e.TenorDays)
}

// Curve is a single curve snapshot.
type Curve struct {
	currency string
	date     time.Time
	nodes    []Node // sorted by tenor
}

// New builds a curve snapshot. Tenors must be positive and unique.
func New(currency string, date time.Time, nodes []Node) (*Curve, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("curve.New: %s@%s: no nodes", currency, date.Format(utils.DateLayout))
	}
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TenorDays < sorted[j].TenorDays })
	for i, n := range sorted {
		if n.TenorDays <= 0 {
			return nil, fmt.Errorf("curve.New: %s: tenor must be positive, got %d", currency, n.TenorDays)
		}
		if n.Rate <= -1 {
			return nil, fmt.Errorf("curve.New: %s: rate %.6f at %dd is below -100%%", currency, n.Rate, n.TenorDays)
		}
		if i > 0 && sorted[i-1].TenorDays == n.TenorDays {
			return nil, fmt.Errorf("curve.New: %s: duplicate tenor %dd", currency, n.TenorDays)
		}
	}
	return &Curve{currency: currency, date: date, nodes: sorted}, nil
}

func (c *Curve) Currency() string { return c.currency }

func (c *Curve) Date() time.Time { return c.date }

// Nodes returns a copy of the nodes in tenor order.
func (c *Curve) Nodes() []Node {
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Rate returns the EA rate quoted at exactly tenorDays.
func (c *Curve) Rate(tenorDays int) (float64, error) {
	i := sort.Search(len(c.nodes), func(i int) bool {
		return c.nodes[i].TenorDays >= tenorDays
	})
	if i < len(c.nodes) && c.nodes[i].TenorDays == tenorDays {
		return c.nodes[i].Rate, nil
	}
	return 0, &MissingNodeError{Currency: c.currency, CurveDate: c.date, TenorDays: tenorDays}
}

// ForwardNodes filters the curve to exactly the requested tenors and converts
// each to a zero-coupon price and forward rate. The result is sorted by tenor
// with duplicates removed.
func (c *Curve) ForwardNodes(tenors []int) ([]ForwardNode, error) {
	uniq := make([]int, len(tenors))
	copy(uniq, tenors)
	sort.Ints(uniq)

	out := make([]ForwardNode, 0, len(uniq))
	for i, days := range uniq {
		if i > 0 && uniq[i-1] == days {
			continue
		}
		ea, err := c.Rate(days)
		if err != nil {
			return nil, err
		}
		t := utils.TenorYears(days)
		p := rates.ZeroCouponPrice(ea, t)
		out = append(out, ForwardNode{
			TenorDays:      days,
			Time:           t,
			DiscountFactor: p,
			Forward:        rates.ForwardFromPrice(p, t),
		})
	}
	return out, nil
}
