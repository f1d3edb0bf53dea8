package batch

import (
	"fmt"
	"strings"

	"github.com/meenmo/prepaysim/amortization"
	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/credit"
	"github.com/meenmo/prepaysim/curve"
	"github.com/meenmo/prepaysim/engine"
	"github.com/meenmo/prepaysim/utils"
)

// BatchInput defines the JSON input schema.
//
// Conventions:
// - rates and the threshold are decimals (0.125 means 12.5%, 0.02 means 2 points)
// - dates are "YYYY-MM-DD"
type BatchInput struct {
	Model     string  `json:"model"`  // "vasicek" or "hull-white"
	Cutoff    string  `json:"cutoff"` // "2025-06-30"
	Threshold float64 `json:"threshold"`
	Seed      uint64  `json:"seed"` // optional; 0 is non-deterministic

	Credits []CreditInput `json:"credits"`

	// Series keys Vasicek history by credit type.
	Series map[string][]ObservationInput `json:"series"`
	// Curves keys Hull-White curve snapshots by currency.
	Curves map[string][]CurveInput `json:"curves"`
}

type CreditInput struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Currency     string  `json:"currency"`
	Principal    float64 `json:"principal"`
	Rate         float64 `json:"rate"`
	Payments     int     `json:"payments"`
	Disbursement string  `json:"disbursement"`
	Maturity     string  `json:"maturity"` // required for bullet credits without a schedule
	Frequency    string  `json:"frequency"`
	System       string  `json:"system"`

	// Schedule is optional; it is generated from the fields above when empty.
	Schedule []FlowInput `json:"schedule"`
}

type FlowInput struct {
	Date        string  `json:"date"`
	Capital     float64 `json:"capital"`
	Interest    float64 `json:"interest"`
	Outstanding float64 `json:"outstanding"`
}

type ObservationInput struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

type CurveInput struct {
	Date  string      `json:"date"`
	Nodes []NodeInput `json:"nodes"`
}

type NodeInput struct {
	TenorDays int     `json:"tenor_days"`
	Rate      float64 `json:"rate"`
}

// toEngine converts the JSON schema into an engine batch.
func (in BatchInput) toEngine() (engine.Input, error) {
	model := calibration.Model(strings.ToLower(strings.TrimSpace(in.Model)))
	cutoff, err := utils.ParseDate(in.Cutoff)
	if err != nil {
		return engine.Input{}, fmt.Errorf("invalid cutoff: %v", err)
	}

	out := engine.Input{
		Model:     model,
		Cutoff:    cutoff,
		Threshold: in.Threshold,
		Seed:      in.Seed,
		Series:    make(map[string]calibration.Series, len(in.Series)),
		Curves:    make(map[string]*curve.History, len(in.Curves)),
	}

	for _, ci := range in.Credits {
		c, err := ci.toCredit()
		if err != nil {
			return engine.Input{}, err
		}
		if len(c.Schedule) == 0 {
			// A schedule that cannot be generated fails only its credit.
			generated, err := amortization.WithSchedule(c)
			if err != nil {
				if out.Invalid == nil {
					out.Invalid = make(map[string]error)
				}
				out.Invalid[c.ID] = err
			} else {
				c = generated
			}
		}
		out.Credits = append(out.Credits, c)
	}

	for creditType, obs := range in.Series {
		series := make(calibration.Series, 0, len(obs))
		for i, o := range obs {
			d, err := utils.ParseDate(o.Date)
			if err != nil {
				return engine.Input{}, fmt.Errorf("series %s[%d]: %v", creditType, i, err)
			}
			series = append(series, calibration.Observation{Date: d, Rate: o.Rate})
		}
		out.Series[creditType] = series
	}

	for currency, snaps := range in.Curves {
		curves := make([]*curve.Curve, 0, len(snaps))
		for i, s := range snaps {
			d, err := utils.ParseDate(s.Date)
			if err != nil {
				return engine.Input{}, fmt.Errorf("curves %s[%d]: %v", currency, i, err)
			}
			nodes := make([]curve.Node, len(s.Nodes))
			for k, n := range s.Nodes {
				nodes[k] = curve.Node{TenorDays: n.TenorDays, Rate: n.Rate}
			}
			c, err := curve.New(currency, d, nodes)
			if err != nil {
				return engine.Input{}, err
			}
			curves = append(curves, c)
		}
		h, err := curve.NewHistory(currency, curves)
		if err != nil {
			return engine.Input{}, err
		}
		out.Curves[currency] = h
	}
	return out, nil
}

func (ci CreditInput) toCredit() (credit.Credit, error) {
	c := credit.Credit{
		ID:        ci.ID,
		Type:      ci.Type,
		Currency:  strings.ToUpper(strings.TrimSpace(ci.Currency)),
		Principal: ci.Principal,
		Rate:      ci.Rate,
		Payments:  ci.Payments,
	}
	var err error
	if c.System, err = credit.ParseSystem(ci.System); err != nil {
		return credit.Credit{}, fmt.Errorf("credit %s: %v", ci.ID, err)
	}
	if strings.TrimSpace(ci.Frequency) != "" {
		if c.Frequency, err = credit.ParseFrequency(ci.Frequency); err != nil {
			return credit.Credit{}, fmt.Errorf("credit %s: %v", ci.ID, err)
		}
	}
	if c.Disbursement, err = utils.ParseDate(ci.Disbursement); err != nil {
		return credit.Credit{}, fmt.Errorf("credit %s: disbursement: %v", ci.ID, err)
	}
	if strings.TrimSpace(ci.Maturity) != "" {
		if c.Maturity, err = utils.ParseDate(ci.Maturity); err != nil {
			return credit.Credit{}, fmt.Errorf("credit %s: maturity: %v", ci.ID, err)
		}
	}

	if len(ci.Schedule) == 0 {
		return c, nil
	}
	for i, f := range ci.Schedule {
		d, err := utils.ParseDate(f.Date)
		if err != nil {
			return credit.Credit{}, fmt.Errorf("credit %s: schedule[%d]: %v", ci.ID, i, err)
		}
		c.Schedule = append(c.Schedule, credit.Flow{Date: d, Capital: f.Capital, Interest: f.Interest, Outstanding: f.Outstanding})
	}
	if c.Maturity.IsZero() {
		c.Maturity = c.Schedule[len(c.Schedule)-1].Date
	}
	return c, nil
}
