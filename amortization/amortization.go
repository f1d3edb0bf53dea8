// Package amortization generates contractual payment schedules for the
// supported amortization systems.
//
// The simulation core treats schedules as input; this package is the reference
// producer used by the CLI when a credit arrives without one.
package amortization

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meenmo/prepaysim/credit"
	"github.com/meenmo/prepaysim/utils"
)

const centPlaces = 2

// Generate builds the contractual schedule of c from its static fields.
//
// Amounts are rounded to cents and the final payment absorbs rounding so that
// capital sums to the principal exactly.
func Generate(c credit.Credit) ([]credit.Flow, error) {
	if c.Principal <= 0 {
		return nil, fmt.Errorf("Generate: credit %s: principal must be positive", c.ID)
	}
	if c.Rate < 0 || c.Rate >= 1 {
		return nil, fmt.Errorf("Generate: credit %s: rate %.6f must be a decimal in [0, 1)", c.ID, c.Rate)
	}
	if c.Disbursement.IsZero() {
		return nil, fmt.Errorf("Generate: credit %s: disbursement date is required", c.ID)
	}

	if c.System == credit.Bullet {
		return bullet(c)
	}

	if c.Payments <= 0 {
		return nil, fmt.Errorf("Generate: credit %s: payment count must be positive", c.ID)
	}
	perYear, err := c.Frequency.PeriodsPerYear()
	if err != nil {
		return nil, fmt.Errorf("Generate: credit %s: %w", c.ID, err)
	}
	periodic := math.Pow(1+c.Rate, 1/float64(perYear)) - 1
	dates := paymentDates(c.Disbursement, c.Frequency, perYear, c.Payments)

	switch c.System {
	case credit.French:
		return french(c.Principal, periodic, dates), nil
	case credit.German:
		return german(c.Principal, periodic, dates), nil
	case credit.American:
		return american(c.Principal, periodic, dates), nil
	default:
		return nil, fmt.Errorf("Generate: credit %s: unsupported system %q", c.ID, string(c.System))
	}
}

// WithSchedule returns a copy of c carrying its generated schedule, with
// Maturity set to the last payment date.
func WithSchedule(c credit.Credit) (credit.Credit, error) {
	flows, err := Generate(c)
	if err != nil {
		return credit.Credit{}, err
	}
	c.Schedule = flows
	c.Maturity = flows[len(flows)-1].Date
	if c.System == credit.Bullet {
		c.Payments = 1
	}
	return c, nil
}

func paymentDates(start time.Time, freq credit.Frequency, perYear, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	for k := 1; k <= n; k++ {
		if freq == credit.Biweekly {
			dates = append(dates, start.AddDate(0, 0, 15*k))
			continue
		}
		dates = append(dates, utils.AddMonth(start, k*12/perYear))
	}
	return dates
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(centPlaces)
}

// schedule walks the balance down, asking capitalAt for each period's capital.
func schedule(principal, periodic float64, dates []time.Time, capitalAt func(k int, interest, outstanding decimal.Decimal) decimal.Decimal) []credit.Flow {
	rate := decimal.NewFromFloat(periodic)
	out := cents(principal)
	flows := make([]credit.Flow, 0, len(dates))
	for k, d := range dates {
		interest := out.Mul(rate).Round(centPlaces)
		capital := capitalAt(k, interest, out).Round(centPlaces)
		if k == len(dates)-1 || capital.GreaterThan(out) {
			capital = out
		}
		out = out.Sub(capital)
		flows = append(flows, credit.Flow{
			Date:        d,
			Capital:     capital.InexactFloat64(),
			Interest:    interest.InexactFloat64(),
			Outstanding: out.InexactFloat64(),
		})
	}
	return flows
}

func french(principal, periodic float64, dates []time.Time) []credit.Flow {
	n := float64(len(dates))
	installment := principal / n
	if periodic > 0 {
		growth := math.Pow(1+periodic, n)
		installment = principal * periodic * growth / (growth - 1)
	}
	fixed := decimal.NewFromFloat(installment)
	return schedule(principal, periodic, dates, func(_ int, interest, _ decimal.Decimal) decimal.Decimal {
		return fixed.Sub(interest)
	})
}

func german(principal, periodic float64, dates []time.Time) []credit.Flow {
	constant := decimal.NewFromFloat(principal / float64(len(dates)))
	return schedule(principal, periodic, dates, func(int, decimal.Decimal, decimal.Decimal) decimal.Decimal {
		return constant
	})
}

func american(principal, periodic float64, dates []time.Time) []credit.Flow {
	return schedule(principal, periodic, dates, func(int, decimal.Decimal, decimal.Decimal) decimal.Decimal {
		return decimal.Zero
	})
}

func bullet(c credit.Credit) ([]credit.Flow, error) {
	if !c.Maturity.After(c.Disbursement) {
		return nil, fmt.Errorf("Generate: credit %s: bullet maturity must be after disbursement", c.ID)
	}
	years := utils.YearFraction(c.Disbursement, c.Maturity)
	interest := cents(c.Principal * (math.Pow(1+c.Rate, years) - 1))
	return []credit.Flow{{
		Date:        c.Maturity,
		Capital:     cents(c.Principal).InexactFloat64(),
		Interest:    interest.InexactFloat64(),
		Outstanding: 0,
	}}, nil
}
