// Package batch implements the run and calibrate subcommands: JSON batch in,
// JSON result out.
package batch

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meenmo/prepaysim/adjust"
	"github.com/meenmo/prepaysim/config"
	"github.com/meenmo/prepaysim/engine"
	"github.com/meenmo/prepaysim/metrics"
	"github.com/meenmo/prepaysim/rates"
	"github.com/meenmo/prepaysim/utils"
	"github.com/meenmo/prepaysim/validation"
)

type BatchOutput struct {
	RunID        string              `json:"run_id,omitempty"`
	Model        string              `json:"model,omitempty"`
	Cutoff       string              `json:"cutoff,omitempty"`
	Seed         uint64              `json:"seed,omitempty"`
	Calibrations []CalibrationOutput `json:"calibrations,omitempty"`
	Failures     []FailureOutput     `json:"failures,omitempty"`
	Schedules    []adjust.Schedule   `json:"schedules,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// CalibrationOutput reports levels both in short-rate space and as
// effective annual rates.
type CalibrationOutput struct {
	Subject       string             `json:"subject"`
	Model         string             `json:"model"`
	Kappa         float64            `json:"kappa"`
	Theta         float64            `json:"theta"`
	ThetaEA       float64            `json:"theta_ea"`
	Sigma         float64            `json:"sigma"`
	StressedSigma float64            `json:"stressed_sigma"`
	R0            float64            `json:"r0"`
	R0EA          float64            `json:"r0_ea"`
	DriftPoints   int                `json:"drift_points,omitempty"`
	Validation    validation.Metrics `json:"validation"`
}

type FailureOutput struct {
	CreditID string `json:"credit_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// Run executes a full batch.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return execute("run", true, args, stdin, stdout, stderr)
}

// Calibrate executes the calibration stage only.
func Calibrate(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return execute("calibrate", false, args, stdin, stdout, stderr)
}

func execute(name string, simulate bool, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "JSON input path (optional; if set, ignores stdin)")
	configPath := fs.String("config", "", "YAML config path (optional; defaults plus PREPAYSIM_* environment)")
	metricsPath := fs.String("metrics", "", "write Prometheus text metrics to this file after the run (optional)")
	debug := fs.Bool("debug", false, "Human-readable debug logging")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr, name)
		return 0
	}

	path := strings.TrimSpace(*inputPath)
	if path == "" {
		if f, ok := stdin.(*os.File); ok {
			if stat, err := f.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
				usage(stderr, name)
				return 2
			}
		}
	}

	inputBytes, err := readInput(stdin, path)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to read input: %v", err))
	}
	var input BatchInput
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return writeError(stdout, fmt.Sprintf("invalid JSON: %v", err))
	}
	in, err := input.toEngine()
	if err != nil {
		return writeError(stdout, err.Error())
	}

	cfg, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		return writeError(stdout, err.Error())
	}

	log := newLogger(stderr, *debug)
	defer log.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	eng, err := engine.New(cfg, log, rec)
	if err != nil {
		return writeError(stdout, err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *engine.Result
	if simulate {
		res, err = eng.Run(ctx, in)
	} else {
		res, err = eng.Calibrate(ctx, in)
	}
	if err != nil {
		return writeError(stdout, err.Error())
	}

	if p := strings.TrimSpace(*metricsPath); p != "" {
		if err := prometheus.WriteToTextfile(p, reg); err != nil {
			log.Warn("metrics not written", zap.String("path", p), zap.Error(err))
		}
	}

	outputBytes, err := json.Marshal(toOutput(res))
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to encode output: %v", err))
	}
	fmt.Fprintln(stdout, string(outputBytes))
	return 0
}

func toOutput(res *engine.Result) BatchOutput {
	out := BatchOutput{
		RunID:     res.RunID,
		Model:     string(res.Model),
		Cutoff:    res.Cutoff.Format(utils.DateLayout),
		Seed:      res.Seed,
		Schedules: res.Schedules,
	}
	for _, c := range res.Calibrations {
		co := CalibrationOutput{
			Subject:       c.Subject,
			Model:         string(c.Model),
			Kappa:         c.Base.Kappa,
			Theta:         c.Base.Theta,
			ThetaEA:       rates.ToEffectiveAnnual(c.Base.Theta),
			Sigma:         c.Base.Sigma,
			StressedSigma: c.Stressed.Sigma,
			R0:            c.Base.R0,
			R0EA:          rates.ToEffectiveAnnual(c.Base.R0),
			Validation:    c.Validation,
		}
		if c.Base.Drift != nil {
			co.DriftPoints = len(c.Base.Drift.Times)
		}
		out.Calibrations = append(out.Calibrations, co)
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, FailureOutput{
			CreditID: f.CreditID,
			Stage:    string(f.Stage),
			Error:    f.Err.Error(),
		})
	}
	return out
}

// newLogger writes JSON logs to w, or console logs at debug level.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	enc := zapcore.NewJSONEncoder(encCfg)
	if debug {
		level = zapcore.DebugLevel
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func usage(w io.Writer, name string) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  prepaysim %s < input.json\n", name)
	fmt.Fprintf(w, "  prepaysim %s -input /path/to/input.json [-config config.yaml] [-metrics metrics.prom] [-debug]\n", name)
	fmt.Fprintln(w)
	if name == "calibrate" {
		fmt.Fprintln(w, "Read a JSON batch, calibrate the short-rate model, output parameters and fit metrics as JSON.")
		return
	}
	fmt.Fprintln(w, "Read a JSON batch, simulate prepayment scenarios, output adjusted schedules as JSON.")
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(stdin)
}

func writeError(stdout io.Writer, msg string) int {
	output := BatchOutput{Error: msg}
	outputBytes, _ := json.Marshal(output)
	fmt.Fprintln(stdout, string(outputBytes))
	return 1
}
