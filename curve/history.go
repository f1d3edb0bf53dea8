package curve

import (
	"fmt"
	"sort"
	"time"

	"github.com/meenmo/prepaysim/utils"
)

// History is a currency's curve of curves: snapshots in date order.
type History struct {
	currency  string
	snapshots []*Curve
}

// NewHistory sorts snapshots by date and rejects mixed currencies or
// duplicate dates.
func NewHistory(currency string, snapshots []*Curve) (*History, error) {
	sorted := make([]*Curve, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].date.Before(sorted[j].date) })
	for i, c := range sorted {
		if c.currency != currency {
			return nil, fmt.Errorf("curve.NewHistory: snapshot %s is %s, want %s",
				c.date.Format(utils.DateLayout), c.currency, currency)
		}
		if i > 0 && sorted[i-1].date.Equal(c.date) {
			return nil, fmt.Errorf("curve.NewHistory: %s: duplicate snapshot date %s",
				currency, c.date.Format(utils.DateLayout))
		}
	}
	return &History{currency: currency, snapshots: sorted}, nil
}

func (h *History) Currency() string { return h.currency }

func (h *History) Len() int { return len(h.snapshots) }

// Until returns the snapshots dated on or before cutoff.
func (h *History) Until(cutoff time.Time) []*Curve {
	i := sort.Search(len(h.snapshots), func(i int) bool {
		return h.snapshots[i].date.After(cutoff)
	})
	return h.snapshots[:i]
}

// AsOf returns the latest snapshot dated on or before cutoff.
func (h *History) AsOf(cutoff time.Time) (*Curve, error) {
	upTo := h.Until(cutoff)
	if len(upTo) == 0 {
		return nil, fmt.Errorf("curve.AsOf: %s: no snapshot on or before %s", h.currency, cutoff.Format(utils.DateLayout))
	}
	return upTo[len(upTo)-1], nil
}

// Series returns the dated EA quotes at tenorDays for every snapshot up to
// cutoff. A snapshot without that exact node is an error.
func (h *History) Series(tenorDays int, cutoff time.Time) ([]time.Time, []float64, error) {
	upTo := h.Until(cutoff)
	dates := make([]time.Time, 0, len(upTo))
	values := make([]float64, 0, len(upTo))
	for _, c := range upTo {
		r, err := c.Rate(tenorDays)
		if err != nil {
			return nil, nil, err
		}
		dates = append(dates, c.date)
		values = append(values, r)
	}
	return dates, values, nil
}
