package engine

import "fmt"

// Stage names the step at which a credit dropped out of a run.
type Stage string

const (
	StageValidate  Stage = "validate"
	StagePlan      Stage = "plan"
	StageCalibrate Stage = "calibrate"
	StageSimulate  Stage = "simulate"
	StageEvaluate  Stage = "evaluate"
)

// CreditError attaches credit identity to a per-credit failure. It never
// aborts the batch.
type CreditError struct {
	CreditID string
	Stage    Stage
	Err      error
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("credit %s: %s: %v", e.CreditID, e.Stage, e.Err)
}

func (e *CreditError) Unwrap() error {
	return e.Err
}
