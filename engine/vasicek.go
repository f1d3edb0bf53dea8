package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/simulation"
)

// typeGroup is the credits sharing one Vasicek calibration.
type typeGroup struct {
	creditType string
	jobs       []job

	cal       Calibration
	scenarios map[scenario.Stress][]scenario.Scenario
	simErr    error
}

// runVasicek calibrates once per credit type, simulates one path set per type
// and stress setting over the portfolio horizon, then evaluates every credit
// of the type against those paths.
func (e *Engine) runVasicek(ctx context.Context, b *batch, jobs []job) error {
	groups := groupByType(jobs)

	// Calibration: one task per credit type.
	ready := make([]*typeGroup, 0, len(groups))
	var mu sync.Mutex
	g, gctx := e.newGroup(ctx)
	for _, grp := range groups {
		g.Go(func() error {
			cal, err := e.calibrateType(gctx, b, grp.creditType)
			if aborted(gctx, err) {
				return gctx.Err()
			}
			if err != nil {
				for _, j := range grp.jobs {
					e.fail(b, j.credit.ID, StageCalibrate, err)
				}
				return nil
			}
			grp.cal = cal
			mu.Lock()
			ready = append(ready, grp)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if !b.simulate || len(ready) == 0 {
		return nil
	}

	horizon := b.in.Cutoff
	for _, j := range jobs {
		if last := j.plan.Dates[len(j.plan.Dates)-1]; last.After(horizon) {
			horizon = last
		}
	}

	// Path generation: one task per credit type and stress setting.
	g, gctx = e.newGroup(ctx)
	for _, grp := range ready {
		grp.scenarios = make(map[scenario.Stress][]scenario.Scenario, 2)
		for stress, p := range grp.cal.variants() {
			g.Go(func() error {
				paths, err := e.simulatePaths(gctx, b, grp.creditType, stress, p, horizon)
				if aborted(gctx, err) {
					return gctx.Err()
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					grp.simErr = err
					return nil
				}
				grp.scenarios[stress] = paths
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	simulated := ready[:0]
	for _, grp := range ready {
		if grp.simErr != nil {
			for _, j := range grp.jobs {
				e.fail(b, j.credit.ID, StageSimulate, grp.simErr)
			}
			continue
		}
		simulated = append(simulated, grp)
	}

	// Evaluation: one task per credit, both stress settings.
	g, gctx = e.newGroup(ctx)
	for _, grp := range simulated {
		for _, j := range grp.jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sets := []scenarioSet{
					{stress: scenario.Base, seq: slices.Values(grp.scenarios[scenario.Base])},
					{stress: scenario.Stressed, seq: slices.Values(grp.scenarios[scenario.Stressed])},
				}
				if err := e.evaluateCredit(b, j, calibration.Vasicek, sets); err != nil {
					e.fail(b, j.credit.ID, StageEvaluate, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func groupByType(jobs []job) []*typeGroup {
	index := make(map[string]*typeGroup)
	var groups []*typeGroup
	for _, j := range jobs {
		grp, ok := index[j.credit.Type]
		if !ok {
			grp = &typeGroup{creditType: j.credit.Type}
			index[j.credit.Type] = grp
			groups = append(groups, grp)
		}
		grp.jobs = append(grp.jobs, j)
	}
	sort.Slice(groups, func(i, k int) bool { return groups[i].creditType < groups[k].creditType })
	return groups
}

func (e *Engine) calibrateType(ctx context.Context, b *batch, creditType string) (Calibration, error) {
	series, ok := b.in.Series[creditType]
	if !ok {
		return Calibration{}, fmt.Errorf("no historical series for credit type %q", creditType)
	}
	series = series.Until(b.in.Cutoff)

	cctx, cancel := e.calibrationContext(ctx)
	defer cancel()
	start := time.Now()
	base, err := calibration.CalibrateVasicek(cctx, creditType, series, e.cfg, b.log)
	e.observeCalibration(calibration.Vasicek, start, err)
	if err != nil {
		return Calibration{}, err
	}
	return e.calibrated(b, creditType, base)
}

// simulatePaths materialises the path set of one credit type so that every
// credit of the type is evaluated against the same paths.
func (e *Engine) simulatePaths(ctx context.Context, b *batch, creditType string, stress scenario.Stress, p calibration.Params, horizon time.Time) ([]scenario.Scenario, error) {
	sim, err := simulation.NewPathSimulator(p, b.in.Cutoff, horizon, simulation.Options{
		Paths:    e.cfg.Scenarios,
		StepDays: e.cfg.VasicekStepDays,
		Seed:     subjectSeed(b.seed, creditType, stress),
	})
	if err != nil {
		return nil, err
	}
	paths := make([]scenario.Scenario, 0, e.cfg.Scenarios)
	for s := range sim.Scenarios() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths = append(paths, s)
	}
	b.log.Debug("vasicek paths simulated",
		zap.String("credit_type", creditType),
		zap.String("stress", string(stress)),
		zap.Int("paths", len(paths)),
		zap.Int("steps", sim.Steps()))
	return paths, nil
}
