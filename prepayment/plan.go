package prepayment

import (
	"fmt"
	"time"

	"github.com/meenmo/prepaysim/credit"
	"github.com/meenmo/prepaysim/utils"
)

// DegenerateScheduleError reports a non-bullet credit with fewer than two
// evaluation dates after the cutoff.
type DegenerateScheduleError struct {
	CreditID string
	Usable   int
}

func (e *DegenerateScheduleError) Error() string {
	return fmt.Sprintf("credit %s: degenerate schedule: %d usable evaluation date(s) after cutoff", e.CreditID, e.Usable)
}

// Plan is the ordered set of dates at which a credit is evaluated.
type Plan struct {
	CreditID string
	Cutoff   time.Time
	Bullet   bool
	Dates    []time.Time
	// ScheduleIndex maps each date to its flow in Credit.Schedule, or -1 for
	// synthetic bullet dates.
	ScheduleIndex []int
}

// EvaluationPlan lists the contractual payment dates strictly after cutoff.
//
// Bullet credits get synthetic dates instead: every month from the cutoff when
// the remaining tenor is at most monthlyMaxYears, every year otherwise,
// strictly before maturity, followed by the maturity date itself.
func EvaluationPlan(c credit.Credit, cutoff time.Time, monthlyMaxYears float64) (Plan, error) {
	future, first := c.FutureFlows(cutoff)
	plan := Plan{CreditID: c.ID, Cutoff: cutoff, Bullet: c.IsBullet()}

	if !plan.Bullet {
		if len(future) < 2 {
			return Plan{}, &DegenerateScheduleError{CreditID: c.ID, Usable: len(future)}
		}
		for i, f := range future {
			plan.Dates = append(plan.Dates, f.Date)
			plan.ScheduleIndex = append(plan.ScheduleIndex, first+i)
		}
		return plan, nil
	}

	if len(future) == 0 {
		return Plan{}, &DegenerateScheduleError{CreditID: c.ID, Usable: 0}
	}
	last := len(c.Schedule) - 1
	maturity := c.Schedule[last].Date

	step := 12
	if utils.YearFraction(cutoff, maturity) <= monthlyMaxYears {
		step = 1
	}
	for k := 1; ; k++ {
		d := utils.AddMonth(cutoff, k*step)
		if !d.Before(maturity) {
			break
		}
		plan.Dates = append(plan.Dates, d)
		plan.ScheduleIndex = append(plan.ScheduleIndex, -1)
	}
	plan.Dates = append(plan.Dates, maturity)
	plan.ScheduleIndex = append(plan.ScheduleIndex, last)
	return plan, nil
}
