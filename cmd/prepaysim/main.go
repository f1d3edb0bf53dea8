package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meenmo/prepaysim/cmd/prepaysim/internal/batch"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "run":
		return batch.Run(args[1:], stdin, stdout, stderr)
	case "calibrate":
		return batch.Calibrate(args[1:], stdin, stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: prepaysim <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run        Calibrate, simulate and emit prepayment-adjusted schedules")
	fmt.Fprintln(w, "  calibrate  Calibrate only and emit parameters with fit metrics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run `prepaysim <command> -h` for command-specific help.")
}
