// Package prepayment decides, date by date along one rate scenario, whether a
// borrower refinances.
//
// The rule is shared by every rate model: at each evaluation date while the
// credit is active, differential = contractual EA − simulated EA, and the
// credit prepays when differential ≥ threshold. Both rates and the threshold
// are decimals: a threshold of 0.02 is two percentage points.
package prepayment

import (
	"fmt"
	"math"
	"time"
)

// State is the per-scenario credit state.
type State int

const (
	Active State = iota
	Prepaid
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Prepaid:
		return "PREPAID"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is the outcome at one evaluation date.
type Action string

const (
	Continue Action = "CONTINUE"
	Prepay   Action = "PREPAY"
)

// Decision records one evaluation.
type Decision struct {
	Date         time.Time
	Contractual  float64
	Simulated    float64
	Differential float64
	Action       Action
}

// Trajectory is the decision sequence for one scenario. It stops at the first
// Prepay: later dates are never evaluated.
type Trajectory struct {
	State     State
	Decisions []Decision
}

// PrepaidIndex returns the plan index of the Prepay decision, or -1.
func (t Trajectory) PrepaidIndex() int {
	if t.State != Prepaid {
		return -1
	}
	return len(t.Decisions) - 1
}

// PrepaymentDate returns the date the credit prepaid, if it did.
func (t Trajectory) PrepaymentDate() (time.Time, bool) {
	if t.State != Prepaid {
		return time.Time{}, false
	}
	return t.Decisions[len(t.Decisions)-1].Date, true
}

// RateSource yields the simulated EA at a date.
type RateSource interface {
	RateAt(date time.Time) (float64, error)
}

// Evaluator applies the threshold rule.
type Evaluator struct {
	threshold float64
}

// NewEvaluator returns an evaluator for threshold, a decimal spread in [0, 1).
func NewEvaluator(threshold float64) (*Evaluator, error) {
	if threshold < 0 || threshold >= 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("NewEvaluator: threshold %g must be a decimal spread in [0, 1), e.g. 0.02 for 2%%", threshold)
	}
	return &Evaluator{threshold: threshold}, nil
}

// Threshold returns the configured spread.
func (e *Evaluator) Threshold() float64 {
	return e.threshold
}

// Decide compares one contractual and simulated EA. The boundary is closed:
// a differential equal to the threshold prepays.
func (e *Evaluator) Decide(contractual, simulated float64) Decision {
	d := Decision{
		Contractual:  contractual,
		Simulated:    simulated,
		Differential: contractual - simulated,
		Action:       Continue,
	}
	if d.Differential >= e.threshold {
		d.Action = Prepay
	}
	return d
}

// Walk evaluates dates in order against src, starting Active. Prepaid is
// absorbing: the walk ends at the first Prepay.
func (e *Evaluator) Walk(contractual float64, dates []time.Time, src RateSource) (Trajectory, error) {
	tr := Trajectory{State: Active, Decisions: make([]Decision, 0, len(dates))}
	for _, date := range dates {
		simulated, err := src.RateAt(date)
		if err != nil {
			return Trajectory{}, fmt.Errorf("Walk: %w", err)
		}
		d := e.Decide(contractual, simulated)
		d.Date = date
		tr.Decisions = append(tr.Decisions, d)
		if d.Action == Prepay {
			tr.State = Prepaid
			break
		}
	}
	return tr, nil
}
