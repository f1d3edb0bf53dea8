// Package adjust rewrites a contractual schedule into the prepayment-adjusted
// schedule of one scenario.
package adjust

import (
	"fmt"
	"time"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/credit"
	"github.com/meenmo/prepaysim/prepayment"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/utils"
)

// Flow is one adjusted payment.
type Flow struct {
	Date               time.Time `json:"date"`
	Capital            float64   `json:"capital"`
	Interest           float64   `json:"interest"`
	Total              float64   `json:"total"`
	ExpectedPrepayment bool      `json:"expected_prepayment"`
	Outstanding        float64   `json:"outstanding"`
}

// Schedule is the adjusted schedule of one (credit, scenario, stress). It is
// never modified after Adjust returns it.
type Schedule struct {
	RunID          string            `json:"run_id"`
	CreditID       string            `json:"credit_id"`
	Model          calibration.Model `json:"model"`
	Stress         scenario.Stress   `json:"stress"`
	ScenarioID     int               `json:"scenario_id"`
	Weight         float64           `json:"weight"`
	Prepaid        bool              `json:"prepaid"`
	PrepaymentDate *time.Time        `json:"prepayment_date,omitempty"`
	Flows          []Flow            `json:"flows"`
}

// Meta identifies the run and scenario a schedule belongs to.
type Meta struct {
	RunID      string
	Model      calibration.Model
	Stress     scenario.Stress
	ScenarioID int
	Weight     float64
}

// Adjust truncates the future contractual schedule of c at the trajectory's
// prepayment date. Flows before it are copied; the prepayment flow pays the
// balance entering that date plus that date's interest; later flows are
// dropped. Bullet credits accrue interest proportionally to elapsed days.
// A trajectory that never prepays yields the future contractual schedule.
func Adjust(c credit.Credit, plan prepayment.Plan, tr prepayment.Trajectory, meta Meta) (Schedule, error) {
	if len(tr.Decisions) > len(plan.Dates) {
		return Schedule{}, fmt.Errorf("Adjust: credit %s: %d decisions for %d evaluation dates",
			c.ID, len(tr.Decisions), len(plan.Dates))
	}
	future, first := c.FutureFlows(plan.Cutoff)
	out := Schedule{
		RunID:      meta.RunID,
		CreditID:   c.ID,
		Model:      meta.Model,
		Stress:     meta.Stress,
		ScenarioID: meta.ScenarioID,
		Weight:     meta.Weight,
		Flows:      make([]Flow, 0, len(future)),
	}

	k := tr.PrepaidIndex()
	if k < 0 {
		for _, f := range future {
			out.Flows = append(out.Flows, contractual(f))
		}
		return out, nil
	}

	date := plan.Dates[k]
	out.Prepaid = true
	out.PrepaymentDate = &date

	if plan.Bullet {
		last := c.Schedule[len(c.Schedule)-1]
		interest := AccruedInterest(c.TotalInterest(), c.Disbursement, last.Date, date)
		out.Flows = append(out.Flows, prepaid(date, last.Capital+last.Outstanding, interest))
		return out, nil
	}

	idx := plan.ScheduleIndex[k]
	if idx < first || idx >= len(c.Schedule) {
		return Schedule{}, fmt.Errorf("Adjust: credit %s: evaluation date %s maps to no future flow",
			c.ID, date.Format(utils.DateLayout))
	}
	for _, f := range c.Schedule[first:idx] {
		out.Flows = append(out.Flows, contractual(f))
	}
	f := c.Schedule[idx]
	out.Flows = append(out.Flows, prepaid(f.Date, f.Outstanding+f.Capital, f.Interest))
	return out, nil
}

// AccruedInterest prorates total interest by days elapsed since disbursement:
// total × elapsed / (maturity − disbursement).
func AccruedInterest(total float64, disbursement, maturity, at time.Time) float64 {
	days := utils.DaysBetween(disbursement, maturity)
	if days <= 0 {
		return total
	}
	elapsed := utils.DaysBetween(disbursement, at)
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= days:
		return total
	}
	return total * float64(elapsed) / float64(days)
}

func contractual(f credit.Flow) Flow {
	return Flow{
		Date:        f.Date,
		Capital:     f.Capital,
		Interest:    f.Interest,
		Total:       f.Total(),
		Outstanding: f.Outstanding,
	}
}

func prepaid(date time.Time, capital, interest float64) Flow {
	return Flow{
		Date:               date,
		Capital:            capital,
		Interest:           interest,
		Total:              capital + interest,
		ExpectedPrepayment: true,
		Outstanding:        0,
	}
}
