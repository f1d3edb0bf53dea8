package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds simulation, calibration and batch parameters.
type Config struct {
	// Scenarios is the number of Monte Carlo paths (Vasicek) or sampled
	// lattice branches (Hull-White) per credit and stress setting.
	Scenarios int `mapstructure:"scenarios"`

	// Workers bounds the number of concurrently evaluated units.
	Workers int `mapstructure:"workers"`

	// CalibrationTimeout bounds a single calibration. Zero disables it.
	CalibrationTimeout time.Duration `mapstructure:"calibration_timeout"`

	// StressMultiplier scales σ for the stressed run.
	StressMultiplier float64 `mapstructure:"stress_multiplier"`

	// MinObservations is the minimum historical series length.
	MinObservations int `mapstructure:"min_observations"`

	// MinSpanYears is the minimum period a Vasicek series must cover. Zero
	// disables the check.
	MinSpanYears float64 `mapstructure:"min_span_years"`

	// VasicekStepDays is the simulation and calibration step in days.
	VasicekStepDays int `mapstructure:"vasicek_step_days"`

	// MaxShortRateSigma rejects calibrations at or above this volatility.
	MaxShortRateSigma float64 `mapstructure:"max_short_rate_sigma"`

	// MaxIterations caps optimiser major iterations.
	MaxIterations int `mapstructure:"max_iterations"`

	// ConvergenceTolerance is the absolute NLL tolerance for convergence.
	ConvergenceTolerance float64 `mapstructure:"convergence_tolerance"`

	// MaxEnumeratedBranches switches lattice evaluation from full branch
	// enumeration to Monte Carlo branch sampling above this count.
	MaxEnumeratedBranches int `mapstructure:"max_enumerated_branches"`

	// BulletMonthlyMaxYears: bullet credits with a remaining tenor up to this
	// many years get monthly synthetic evaluation dates, annual beyond.
	BulletMonthlyMaxYears float64 `mapstructure:"bullet_monthly_max_years"`

	// ProbabilityTolerance is ε in the lattice probability invariant checks.
	ProbabilityTolerance float64 `mapstructure:"probability_tolerance"`
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	Scenarios:             100,
	Workers:               runtime.NumCPU(),
	CalibrationTimeout:    30 * time.Second,
	StressMultiplier:      1.25,
	MinObservations:       100,
	MinSpanYears:          2,
	VasicekStepDays:       7,
	MaxShortRateSigma:     0.5,
	MaxIterations:         5000,
	ConvergenceTolerance:  1e-10,
	MaxEnumeratedBranches: 729,
	BulletMonthlyMaxYears: 5,
	ProbabilityTolerance:  1e-9,
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Scenarios <= 0:
		return fmt.Errorf("config: scenarios must be positive, got %d", c.Scenarios)
	case c.Workers <= 0:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	case c.CalibrationTimeout < 0:
		return fmt.Errorf("config: calibration_timeout must not be negative")
	case c.StressMultiplier <= 0:
		return fmt.Errorf("config: stress_multiplier must be positive, got %g", c.StressMultiplier)
	case c.MinObservations < 3:
		return fmt.Errorf("config: min_observations must be at least 3, got %d", c.MinObservations)
	case c.MinSpanYears < 0:
		return fmt.Errorf("config: min_span_years must not be negative, got %g", c.MinSpanYears)
	case c.VasicekStepDays <= 0:
		return fmt.Errorf("config: vasicek_step_days must be positive, got %d", c.VasicekStepDays)
	case c.MaxShortRateSigma <= 0:
		return fmt.Errorf("config: max_short_rate_sigma must be positive, got %g", c.MaxShortRateSigma)
	case c.MaxIterations <= 0:
		return fmt.Errorf("config: max_iterations must be positive, got %d", c.MaxIterations)
	case c.ConvergenceTolerance <= 0:
		return fmt.Errorf("config: convergence_tolerance must be positive, got %g", c.ConvergenceTolerance)
	case c.MaxEnumeratedBranches < 1:
		return fmt.Errorf("config: max_enumerated_branches must be at least 1, got %d", c.MaxEnumeratedBranches)
	case c.BulletMonthlyMaxYears <= 0:
		return fmt.Errorf("config: bullet_monthly_max_years must be positive, got %g", c.BulletMonthlyMaxYears)
	case c.ProbabilityTolerance <= 0:
		return fmt.Errorf("config: probability_tolerance must be positive, got %g", c.ProbabilityTolerance)
	}
	return nil
}

// Load reads a YAML file on top of DefaultConfig. Any key can be overridden
// by an environment variable PREPAYSIM_<KEY>, e.g. PREPAYSIM_SCENARIOS=500.
// An empty path loads defaults plus environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PREPAYSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("scenarios", c.Scenarios)
	v.SetDefault("workers", c.Workers)
	v.SetDefault("calibration_timeout", c.CalibrationTimeout)
	v.SetDefault("stress_multiplier", c.StressMultiplier)
	v.SetDefault("min_observations", c.MinObservations)
	v.SetDefault("min_span_years", c.MinSpanYears)
	v.SetDefault("vasicek_step_days", c.VasicekStepDays)
	v.SetDefault("max_short_rate_sigma", c.MaxShortRateSigma)
	v.SetDefault("max_iterations", c.MaxIterations)
	v.SetDefault("convergence_tolerance", c.ConvergenceTolerance)
	v.SetDefault("max_enumerated_branches", c.MaxEnumeratedBranches)
	v.SetDefault("bullet_monthly_max_years", c.BulletMonthlyMaxYears)
	v.SetDefault("probability_tolerance", c.ProbabilityTolerance)
}
