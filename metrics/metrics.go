// Package metrics exposes batch counters and timings to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prepaysim"

// Recorder holds the engine's collectors. A nil *Recorder records nothing.
type Recorder struct {
	calibrations        *prometheus.CounterVec
	calibrationDuration *prometheus.HistogramVec
	scenarios           *prometheus.CounterVec
	prepayments         *prometheus.CounterVec
	failures            *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		calibrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Calibrations attempted, by model and outcome.",
		}, []string{"model", "outcome"}),
		calibrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calibration_duration_seconds",
			Help:      "Wall time of a single calibration.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"model"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_evaluated_total",
			Help:      "Credit scenarios walked by the prepayment evaluator.",
		}, []string{"model", "stress"}),
		prepayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prepayments_total",
			Help:      "Credit scenarios that ended prepaid.",
		}, []string{"model", "stress"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_failures_total",
			Help:      "Credits excluded from a run, by failing stage.",
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{r.calibrations, r.calibrationDuration, r.scenarios, r.prepayments, r.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveCalibration records one calibration attempt.
func (r *Recorder) ObserveCalibration(model string, took time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calibrations.WithLabelValues(model, outcome).Inc()
	r.calibrationDuration.WithLabelValues(model).Observe(took.Seconds())
}

// ObserveScenario records one evaluated scenario.
func (r *Recorder) ObserveScenario(model, stress string, prepaid bool) {
	if r == nil {
		return
	}
	r.scenarios.WithLabelValues(model, stress).Inc()
	if prepaid {
		r.prepayments.WithLabelValues(model, stress).Inc()
	}
}

// CreditFailed records a credit dropped at stage.
func (r *Recorder) CreditFailed(stage string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(stage).Inc()
}
