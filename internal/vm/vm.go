// Package vm implements the two-tier dispatch loop described in spec §4.5:
// a checked "deopt" interpreter, an unchecked "opt" interpreter sharing the
// same program counter and tape, and a dispatcher that alternates between
// them following an explicit tier-switch return value.
package vm

import (
	"context"
	"io"

	"loopvm/internal/bytecode"
	"loopvm/internal/errors"
	"loopvm/internal/ranges"
	"loopvm/internal/tape"
)

// Tier names one of the two interpreter implementations.
type Tier uint8

const (
	Deopt Tier = iota
	Opt
)

// signal is the per-step dispatch result: either "keep running in the
// current tier", "switch tiers", or "program finished".
type signal uint8

const (
	sigContinue signal = iota
	sigToggle
	sigEnd
)

// Machine holds everything shared across tier switches: the tape, the
// bytecode, the program counter, and the configured byte source/sink.
type Machine struct {
	Tape    *tape.Tape
	Program *bytecode.Program
	PC      int

	In  io.Reader
	Out io.Writer

	// Flush, when set, flushes Out after every byte written by an Out op.
	Flush bool

	// StepLimit caps the total number of bytecode steps executed across
	// both tiers; zero means unlimited. Exceeding it yields a Timeout
	// RuntimeError, matching spec §4.5's optional TimeoutError.
	StepLimit uint64
	steps     uint64
}

// NewMachine builds a Machine ready to run prog against tp, reading from in
// and writing to out.
func NewMachine(prog *bytecode.Program, tp *tape.Tape, in io.Reader, out io.Writer, flush bool, stepLimit uint64) *Machine {
	return &Machine{Tape: tp, Program: prog, In: in, Out: out, Flush: flush, StepLimit: stepLimit}
}

// Run drives the tier dispatcher until the program reaches End or an error
// occurs. ctx cancellation is checked between steps and surfaces as a
// Timeout RuntimeError, since the core has no other notion of cooperative
// cancellation (spec §7: single-threaded, non-suspending).
func (m *Machine) Run(ctx context.Context, info *ranges.Info) error {
	tier := Deopt
	if info.DoOptFirst {
		tier = Opt
	}

	var view *tape.View
	if tier == Opt {
		view = m.Tape.Open()
	}

	for {
		select {
		case <-ctx.Done():
			if view != nil {
				view.Close()
			}
			return errors.Timeout().WithPC(m.PC, int(m.currentPtr(view)))
		default:
		}

		if m.StepLimit != 0 && m.steps >= m.StepLimit {
			if view != nil {
				view.Close()
			}
			return errors.Timeout().WithPC(m.PC, int(m.currentPtr(view)))
		}
		m.steps++

		var sig signal
		var next Tier
		var err error

		if tier == Deopt {
			sig, next, err = m.stepDeopt()
		} else {
			sig, next, err = m.stepOpt(view)
		}

		if err != nil {
			if view != nil {
				view.Close()
			}
			if re, ok := err.(*errors.RuntimeError); ok {
				return re.WithPC(m.PC, int(m.currentPtr(view)))
			}
			return err
		}

		switch sig {
		case sigEnd:
			if view != nil {
				view.Close()
			}
			return nil
		case sigToggle:
			if tier == Opt {
				view.Close()
				view = nil
			}
			tier = next
			if tier == Opt {
				view = m.Tape.Open()
			}
		case sigContinue:
		}
	}
}

func (m *Machine) currentPtr(view *tape.View) uint {
	if view != nil {
		return view.Index()
	}
	return m.Tape.Ptr()
}
