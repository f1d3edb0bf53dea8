// Package credit holds the contractual credit record consumed read-only by the
// simulation core.
package credit

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the contractual payment frequency.
type Frequency string

const (
	Biweekly   Frequency = "BIWEEKLY"
	Monthly    Frequency = "MONTHLY"
	Bimonthly  Frequency = "BIMONTHLY"
	Quarterly  Frequency = "QUARTERLY"
	Semiannual Frequency = "SEMIANNUAL"
	Annual     Frequency = "ANNUAL"
)

// PeriodsPerYear returns the number of payments per year.
func (f Frequency) PeriodsPerYear() (int, error) {
	switch f {
	case Biweekly:
		return 24, nil
	case Monthly:
		return 12, nil
	case Bimonthly:
		return 6, nil
	case Quarterly:
		return 4, nil
	case Semiannual:
		return 2, nil
	case Annual:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown payment frequency %q", string(f))
	}
}

// ParseFrequency accepts the upper-case names above, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := f.PeriodsPerYear(); err != nil {
		return "", err
	}
	return f, nil
}

// System is the amortization system tag.
type System string

const (
	French   System = "FRENCH"   // constant installment
	German   System = "GERMAN"   // constant capital
	American System = "AMERICAN" // interest only, capital at maturity
	Bullet   System = "BULLET"   // single payment at maturity
)

// ParseSystem accepts the upper-case names above, case-insensitively.
func ParseSystem(s string) (System, error) {
	switch sys := System(strings.ToUpper(strings.TrimSpace(s))); sys {
	case French, German, American, Bullet:
		return sys, nil
	default:
		return "", fmt.Errorf("unknown amortization system %q", s)
	}
}

// Flow is one contractual payment.
//
// Outstanding is the balance after the payment is made.
type Flow struct {
	Date        time.Time
	Capital     float64
	Interest    float64
	Outstanding float64
}

func (f Flow) Total() float64 {
	return f.Capital + f.Interest
}

// Credit is a loan with its contractual schedule.
//
// Rate is the contractual annual effective rate as a decimal.
type Credit struct {
	ID           string
	Type         string // credit type, keys Vasicek calibration
	Currency     string // keys Hull-White curves
	Principal    float64
	Rate         float64
	Payments     int
	Disbursement time.Time
	Maturity     time.Time
	Frequency    Frequency
	System       System
	Schedule     []Flow
}

// IsBullet reports whether the credit pays a single terminal flow.
func (c Credit) IsBullet() bool {
	return c.System == Bullet || len(c.Schedule) == 1
}

// FutureFlows returns the contractual flows strictly after cutoff together with
// the index of the first of them in Schedule.
func (c Credit) FutureFlows(cutoff time.Time) ([]Flow, int) {
	for i, f := range c.Schedule {
		if f.Date.After(cutoff) {
			return c.Schedule[i:], i
		}
	}
	return nil, len(c.Schedule)
}

// TotalInterest sums contractual interest over the whole schedule.
func (c Credit) TotalInterest() float64 {
	total := 0.0
	for _, f := range c.Schedule {
		total += f.Interest
	}
	return total
}

// Validate checks the static fields the core relies on.
func (c Credit) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("credit: ID is required")
	}
	if c.Principal <= 0 {
		return fmt.Errorf("credit %s: principal must be positive", c.ID)
	}
	if c.Rate < 0 || c.Rate >= 1 {
		return fmt.Errorf("credit %s: rate %.6f must be a decimal in [0, 1)", c.ID, c.Rate)
	}
	if c.Disbursement.IsZero() || c.Maturity.IsZero() {
		return fmt.Errorf("credit %s: disbursement and maturity dates are required", c.ID)
	}
	if !c.Maturity.After(c.Disbursement) {
		return fmt.Errorf("credit %s: maturity (%s) must be after disbursement (%s)",
			c.ID, c.Maturity.Format("2006-01-02"), c.Disbursement.Format("2006-01-02"))
	}
	if len(c.Schedule) == 0 {
		return fmt.Errorf("credit %s: contractual schedule is empty", c.ID)
	}
	for i := 1; i < len(c.Schedule); i++ {
		if !c.Schedule[i].Date.After(c.Schedule[i-1].Date) {
			return fmt.Errorf("credit %s: schedule dates must be strictly increasing (flow %d)", c.ID, i)
		}
	}
	return nil
}
