// Command loopvm runs a tape-machine source file through the IR/bytecode
// pipeline and the two-tier interpreter.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	vmerrors "loopvm/internal/errors"

	"loopvm/internal/bytecode"
	"loopvm/internal/config"
	"loopvm/internal/diag"
	"loopvm/internal/ir"
	"loopvm/internal/ranges"
	"loopvm/internal/tape"
	"loopvm/internal/vm"
)

var (
	flush     = flag.Bool("flush", false, "flush output after every byte, regardless of TTY detection")
	irDump    = flag.Bool("ir-dump", false, "write the IR trace to stderr before running")
	outDump   = flag.Bool("out-dump", false, "write the bytecode trace, with execution counts, to stderr after running")
	stepLimit = flag.Uint64("step-limit", 0, "abort with a timeout after this many bytecode steps (0 = unlimited)")
	quiet     = flag.Bool("quiet", false, "suppress the run summary line")
	debugRaw  = flag.Bool("debug-raw", false, "render --ir-dump/--out-dump with unfiltered Go-struct output")
)

func main() {
	os.Exit(mainRun())
}

// mainRun holds everything main would otherwise do inline, returning the
// exit code instead of calling os.Exit directly so it can be driven from a
// testscript command table in tests.
func mainRun() int {
	log.SetFlags(0)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Println("Usage: loopvm [flags] FILE")
		flag.PrintDefaults()
		return 3
	}

	runID := uuid.New()
	cfg := config.Run{
		Flush:     *flush || isatty.IsTerminal(os.Stdout.Fd()),
		StepLimit: *stepLimit,
		IRDump:    *irDump,
		OutDump:   *outDump,
		DebugRaw:  *debugRaw,
		Quiet:     *quiet,
	}

	src, err := readSource(flag.Arg(0))
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return 5
	}

	return run(runID.String(), src, cfg)
}

func readSource(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return b, nil
}

// run drives the pipeline end to end and returns the process exit code
// described in SPEC_FULL.md §4.7.
func run(runID string, src []byte, cfg config.Run) int {
	start := time.Now()

	ops, err := ir.Parse(string(src), false)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return 3
	}

	info, err := ranges.Analyze(ops)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return 4
	}

	prog, err := bytecode.Lower(ops, info)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return 4
	}
	prog.EnableCounts()

	if cfg.IRDump || cfg.OutDump {
		fmt.Fprintf(os.Stderr, "=== run %s ===\n", runID)
	}
	if cfg.IRDump {
		if cfg.DebugRaw {
			diag.DumpIRRaw(os.Stderr, ops)
		} else {
			diag.DumpIR(os.Stderr, ops)
		}
	}

	out := bufio.NewWriter(os.Stdout)
	t := tape.New()
	m := vm.NewMachine(prog, t, os.Stdin, out, cfg.Flush, cfg.StepLimit)

	ctx := context.Background()
	runErr := m.Run(ctx, info)
	out.Flush()

	if cfg.OutDump {
		if cfg.DebugRaw {
			diag.DumpBytecodeRaw(os.Stderr, prog)
		} else {
			diag.DumpBytecode(os.Stderr, prog)
		}
	}

	if !cfg.Quiet {
		elapsed := time.Since(start)
		log.Printf("run %s: %s instructions, %s", runID, humanize.Comma(int64(countSteps(prog))), elapsed)
	}

	if runErr == nil {
		return 0
	}
	return exitCode(runErr)
}

func countSteps(prog *bytecode.Program) int64 {
	var total int64
	for _, c := range prog.Counts {
		total += int64(c)
	}
	return total
}

func exitCode(err error) int {
	var rt *vmerrors.RuntimeError
	if errors.As(err, &rt) {
		if rt.Kind == "TimeoutError" {
			return 2
		}
		if rt.Kind == "IOError" {
			return 5
		}
		return 1
	}
	var opt *vmerrors.OptimizationError
	if errors.As(err, &opt) {
		return 4
	}
	var rng *vmerrors.RangeError
	if errors.As(err, &rng) {
		return 4
	}
	var syn *vmerrors.SyntaxError
	if errors.As(err, &syn) {
		return 3
	}
	return 1
}
