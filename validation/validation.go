// Package validation scores a calibration's in-sample fit.
package validation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/meenmo/prepaysim/calibration"
)

// Metrics compares observed and fitted short rates.
type Metrics struct {
	N    int     `json:"n"`
	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

// Compare computes R², RMSE and MAE of fitted against observed.
func Compare(observed, fitted []float64) (Metrics, error) {
	n := len(observed)
	if n == 0 {
		return Metrics{}, fmt.Errorf("validation.Compare: empty series")
	}
	if len(fitted) != n {
		return Metrics{}, fmt.Errorf("validation.Compare: %d observed vs %d fitted values", n, len(fitted))
	}
	return Metrics{
		N:    n,
		R2:   stat.RSquaredFrom(fitted, observed, nil),
		RMSE: floats.Distance(observed, fitted, 2) / math.Sqrt(float64(n)),
		MAE:  floats.Distance(observed, fitted, 1) / float64(n),
	}, nil
}

// FromFit scores a calibration's one-step-ahead fit.
func FromFit(f calibration.Fit) (Metrics, error) {
	return Compare(f.Observed, f.Fitted)
}
