package engine

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/lattice"
	"github.com/meenmo/prepaysim/scenario"
)

// runHullWhite handles each credit end to end in its own task: calibration
// on the credit's own dates, base and stressed lattices, evaluation.
func (e *Engine) runHullWhite(ctx context.Context, b *batch, jobs []job) error {
	g, gctx := e.newGroup(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			stage, err := e.hullWhiteCredit(gctx, b, j)
			if aborted(gctx, err) {
				return gctx.Err()
			}
			if err != nil {
				e.fail(b, j.credit.ID, stage, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) hullWhiteCredit(ctx context.Context, b *batch, j job) (Stage, error) {
	c := j.credit
	history, ok := b.in.Curves[c.Currency]
	if !ok {
		return StageCalibrate, fmt.Errorf("no curve history for currency %q", c.Currency)
	}

	cctx, cancel := e.calibrationContext(ctx)
	start := time.Now()
	base, err := calibration.CalibrateHullWhite(cctx, calibration.HullWhiteInput{
		Subject:         c.ID,
		History:         history,
		Cutoff:          b.in.Cutoff,
		EvaluationDates: j.plan.Dates,
	}, e.cfg, b.log)
	cancel()
	e.observeCalibration(calibration.HullWhite, start, err)
	if err != nil {
		return StageCalibrate, err
	}
	cal, err := e.calibrated(b, c.ID, base)
	if err != nil {
		return StageCalibrate, err
	}
	if !b.simulate {
		return "", nil
	}

	var sets []scenarioSet
	for stress, p := range cal.variants() {
		if err := ctx.Err(); err != nil {
			return StageSimulate, err
		}
		tree, err := lattice.Build(p, b.in.Cutoff, j.plan.Dates, e.cfg.ProbabilityTolerance)
		if err != nil {
			return StageSimulate, err
		}
		sets = append(sets, scenarioSet{stress: stress, seq: e.branches(b, c.ID, stress, tree)})
	}

	if err := e.evaluateCredit(b, j, calibration.HullWhite, sets); err != nil {
		return StageEvaluate, err
	}
	return "", nil
}

// branches enumerates every branch of small lattices and samples
// cfg.Scenarios branches from larger ones.
func (e *Engine) branches(b *batch, creditID string, stress scenario.Stress, tree *lattice.Lattice) iter.Seq[scenario.Scenario] {
	count := tree.BranchCount()
	enumerate := count <= e.cfg.MaxEnumeratedBranches
	b.log.Debug("lattice built",
		zap.String("credit_id", creditID),
		zap.String("stress", string(stress)),
		zap.Int("steps", tree.Steps()),
		zap.Int("nodes", tree.NodeCount()),
		zap.Int("branches", count),
		zap.Bool("enumerated", enumerate))
	if enumerate {
		return tree.Branches()
	}
	return tree.Sample(subjectSeed(b.seed, creditID, stress), e.cfg.Scenarios)
}
