package calibration

import "fmt"

// InsufficientDataError is returned before any fitting when a historical
// series has too few observations or covers too short a period.
type InsufficientDataError struct {
	Subject string
	Have    int
	Need    int

	// SpanYears and NeedYears are set only for a series that has enough
	// observations but too short a span.
	SpanYears float64
	NeedYears float64
}

func (e *InsufficientDataError) Error() string {
	if e.NeedYears > 0 {
		return fmt.Sprintf("calibration %s: series spans %.2f years, need at least %.2f", e.Subject, e.SpanYears, e.NeedYears)
	}
	return fmt.Sprintf("calibration %s: %d observations, need at least %d", e.Subject, e.Have, e.Need)
}

// CalibrationError reports optimiser non-convergence or a parameter bound
// violation. Callers must not simulate with the affected subject.
type CalibrationError struct {
	Model   Model
	Subject string
	Reason  string
	Err     error
}

func (e *CalibrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calibration %s (%s): %s: %v", e.Subject, e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("calibration %s (%s): %s", e.Subject, e.Model, e.Reason)
}

func (e *CalibrationError) Unwrap() error { return e.Err }
