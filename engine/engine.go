// Package engine runs a prepayment simulation batch: calibration, scenario
// generation, prepayment evaluation and schedule adjustment for every credit,
// under base and stressed volatility.
//
// Credits are independent. A credit that fails at any stage is reported as a
// CreditError and the rest of the batch carries on; only cancellation of the
// caller's context aborts a run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meenmo/prepaysim/adjust"
	"github.com/meenmo/prepaysim/calibration"
	"github.com/meenmo/prepaysim/config"
	"github.com/meenmo/prepaysim/credit"
	"github.com/meenmo/prepaysim/curve"
	"github.com/meenmo/prepaysim/metrics"
	"github.com/meenmo/prepaysim/prepayment"
	"github.com/meenmo/prepaysim/scenario"
	"github.com/meenmo/prepaysim/simulation"
	"github.com/meenmo/prepaysim/utils"
	"github.com/meenmo/prepaysim/validation"
)

// stressSalt separates the stressed random stream from the base one.
const stressSalt = 0x5f3759df

// Input is one batch.
type Input struct {
	Model  calibration.Model
	Cutoff time.Time
	// Threshold is the prepayment spread as a decimal (0.02 = 2 points).
	Threshold float64
	// Seed fixes every random stream of the run. Zero seeds from the clock.
	Seed    uint64
	Credits []credit.Credit
	// Series holds the Vasicek history per credit type.
	Series map[string]calibration.Series
	// Curves holds the Hull-White curve history per currency.
	Curves map[string]*curve.History
	// Invalid maps credit IDs to errors found while assembling the credit,
	// such as a schedule that could not be generated. Those credits fail
	// validation.
	Invalid map[string]error
}

// Calibration is one calibrated parameter set with its stressed variant.
// Subject is the credit type (Vasicek) or the credit ID (Hull-White).
type Calibration struct {
	Subject    string
	Model      calibration.Model
	Base       calibration.Params
	Stressed   calibration.Params
	Validation validation.Metrics
}

// variants yields the base and stressed parameters keyed by stress tag.
func (c Calibration) variants() iter.Seq2[scenario.Stress, calibration.Params] {
	return func(yield func(scenario.Stress, calibration.Params) bool) {
		if yield(scenario.Base, c.Base) {
			yield(scenario.Stressed, c.Stressed)
		}
	}
}

// Result is the outcome of a batch. Schedules form an unordered multiset;
// they are sorted only for stable output.
type Result struct {
	RunID        string
	Model        calibration.Model
	Cutoff       time.Time
	Seed         uint64
	Calibrations []Calibration
	Schedules    []adjust.Schedule
	Failures     []*CreditError
}

// Engine executes batches. It is safe for concurrent use.
type Engine struct {
	cfg config.Config
	log *zap.Logger
	rec *metrics.Recorder
}

// New returns an engine. log and rec may be nil.
func New(cfg config.Config, log *zap.Logger, rec *metrics.Recorder) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log, rec: rec}, nil
}

// Run calibrates, simulates and adjusts every credit of in.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	return e.run(ctx, in, true)
}

// Calibrate runs only the calibration stage.
func (e *Engine) Calibrate(ctx context.Context, in Input) (*Result, error) {
	return e.run(ctx, in, false)
}

// job is a credit that passed validation, with its evaluation plan.
type job struct {
	credit credit.Credit
	plan   prepayment.Plan
}

// batch is the mutable state of one run, guarded by mu.
type batch struct {
	in        Input
	evaluator *prepayment.Evaluator
	seed      uint64
	simulate  bool
	log       *zap.Logger

	mu     sync.Mutex
	result *Result
}

func (b *batch) addCalibration(c Calibration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Calibrations = append(b.result.Calibrations, c)
}

func (b *batch) addSchedules(s []adjust.Schedule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Schedules = append(b.result.Schedules, s...)
}

func (e *Engine) fail(b *batch, creditID string, stage Stage, err error) {
	b.log.Warn("credit excluded from run",
		zap.String("credit_id", creditID),
		zap.String("stage", string(stage)),
		zap.Error(err))
	e.rec.CreditFailed(string(stage))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Failures = append(b.result.Failures, &CreditError{CreditID: creditID, Stage: stage, Err: err})
}

func (e *Engine) run(ctx context.Context, in Input, simulate bool) (*Result, error) {
	if in.Model != calibration.Vasicek && in.Model != calibration.HullWhite {
		return nil, fmt.Errorf("engine.Run: unknown model %q", in.Model)
	}
	if in.Cutoff.IsZero() {
		return nil, fmt.Errorf("engine.Run: cutoff date is required")
	}
	evaluator, err := prepayment.NewEvaluator(in.Threshold)
	if err != nil {
		return nil, fmt.Errorf("engine.Run: %w", err)
	}

	seed := in.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	runID := uuid.NewString()
	b := &batch{
		in:        in,
		evaluator: evaluator,
		seed:      seed,
		simulate:  simulate,
		log: e.log.With(
			zap.String("run_id", runID),
			zap.String("model", string(in.Model))),
		result: &Result{RunID: runID, Model: in.Model, Cutoff: in.Cutoff, Seed: seed},
	}
	b.log.Info("run started",
		zap.String("cutoff", in.Cutoff.Format(utils.DateLayout)),
		zap.Int("credits", len(in.Credits)),
		zap.Float64("threshold", in.Threshold),
		zap.Uint64("seed", seed),
		zap.Bool("simulate", simulate))
	start := time.Now()

	jobs := e.prepare(b)
	switch in.Model {
	case calibration.Vasicek:
		err = e.runVasicek(ctx, b, jobs)
	case calibration.HullWhite:
		err = e.runHullWhite(ctx, b, jobs)
	}
	if err != nil {
		return nil, err
	}

	res := b.result
	sort.Slice(res.Calibrations, func(i, j int) bool { return res.Calibrations[i].Subject < res.Calibrations[j].Subject })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].CreditID < res.Failures[j].CreditID })
	sort.Slice(res.Schedules, func(i, j int) bool {
		a, c := res.Schedules[i], res.Schedules[j]
		if a.CreditID != c.CreditID {
			return a.CreditID < c.CreditID
		}
		if a.Stress != c.Stress {
			return a.Stress < c.Stress
		}
		return a.ScenarioID < c.ScenarioID
	})

	b.log.Info("run finished",
		zap.Int("calibrations", len(res.Calibrations)),
		zap.Int("schedules", len(res.Schedules)),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// prepare validates credits and lays out their evaluation plans.
func (e *Engine) prepare(b *batch) []job {
	jobs := make([]job, 0, len(b.in.Credits))
	seen := make(map[string]bool, len(b.in.Credits))
	for _, c := range b.in.Credits {
		if seen[c.ID] {
			e.fail(b, c.ID, StageValidate, errors.New("duplicate credit id"))
			continue
		}
		seen[c.ID] = true
		if err := b.in.Invalid[c.ID]; err != nil {
			e.fail(b, c.ID, StageValidate, err)
			continue
		}
		if err := c.Validate(); err != nil {
			e.fail(b, c.ID, StageValidate, err)
			continue
		}
		plan, err := prepayment.EvaluationPlan(c, b.in.Cutoff, e.cfg.BulletMonthlyMaxYears)
		if err != nil {
			e.fail(b, c.ID, StagePlan, err)
			continue
		}
		jobs = append(jobs, job{credit: c, plan: plan})
	}
	return jobs
}

// calibrationContext bounds one calibration by the configured timeout.
func (e *Engine) calibrationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CalibrationTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CalibrationTimeout)
	}
	return context.WithCancel(ctx)
}

// calibrated stresses base parameters, scores the fit and records both.
func (e *Engine) calibrated(b *batch, subject string, base calibration.Params) (Calibration, error) {
	stressed, err := base.Stress(e.cfg.StressMultiplier)
	if err != nil {
		return Calibration{}, err
	}
	cal := Calibration{Subject: subject, Model: base.Model, Base: base, Stressed: stressed}
	if m, err := validation.FromFit(base.Fit); err != nil {
		b.log.Warn("fit validation skipped", zap.String("subject", subject), zap.Error(err))
	} else {
		cal.Validation = m
		b.log.Info("fit validation",
			zap.String("subject", subject),
			zap.Float64("r2", m.R2),
			zap.Float64("rmse", m.RMSE),
			zap.Float64("mae", m.MAE))
	}
	b.addCalibration(cal)
	return cal, nil
}

// evaluate walks scenarios for one credit and adjusts its schedule per
// scenario.
func (e *Engine) evaluate(b *batch, j job, model calibration.Model, scenarios iter.Seq[scenario.Scenario]) ([]adjust.Schedule, error) {
	var out []adjust.Schedule
	for s := range scenarios {
		tr, err := b.evaluator.Walk(j.credit.Rate, j.plan.Dates, s)
		if err != nil {
			return nil, fmt.Errorf("scenario %d (%s): %w", s.ID, s.Stress, err)
		}
		sched, err := adjust.Adjust(j.credit, j.plan, tr, adjust.Meta{
			RunID:      b.result.RunID,
			Model:      model,
			Stress:     s.Stress,
			ScenarioID: s.ID,
			Weight:     s.Weight,
		})
		if err != nil {
			return nil, err
		}
		e.rec.ObserveScenario(string(model), string(s.Stress), sched.Prepaid)
		out = append(out, sched)
	}
	return out, nil
}

// scenarioSet is the scenarios of one stress setting.
type scenarioSet struct {
	stress scenario.Stress
	seq    iter.Seq[scenario.Scenario]
}

// evaluateCredit evaluates every scenario set of one credit and records the
// schedules only if all of them succeed.
func (e *Engine) evaluateCredit(b *batch, j job, model calibration.Model, sets []scenarioSet) error {
	var all []adjust.Schedule
	for _, set := range sets {
		out, err := e.evaluate(b, j, model, set.seq)
		if err != nil {
			return err
		}
		all = append(all, out...)
	}
	b.addSchedules(all)
	return nil
}

// aborted reports whether err comes from cancellation of the run itself
// rather than a per-credit timeout.
func aborted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func subjectSeed(seed uint64, subject string, stress scenario.Stress) uint64 {
	s := simulation.MixSeed(seed, xxhash.Sum64String(subject))
	if stress == scenario.Stressed {
		s = simulation.MixSeed(s, stressSalt)
	}
	return s
}

func (e *Engine) newGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	return g, gctx
}

func (e *Engine) observeCalibration(model calibration.Model, start time.Time, err error) {
	e.rec.ObserveCalibration(string(model), time.Since(start), err)
}
