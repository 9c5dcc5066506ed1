// Package diag renders IR and bytecode traces for the CLI's --ir-dump /
// --out-dump flags: one op per line, indented by loop nesting depth, and
// (once a program has run) prefixed by the floor of log2 of its per-op
// execution count.
package diag

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"loopvm/internal/bytecode"
	"loopvm/internal/ir"
	"loopvm/internal/ranges"
)

// DumpIR writes one line per IR op, indented two spaces per loop-nesting
// depth tracked via a running counter over LoopStart/LoopEnd*.
func DumpIR(w io.Writer, ops []ir.Op) {
	depth := 0
	for i, op := range ops {
		if op.Kind == ir.LoopEnd || op.Kind == ir.LoopEndOffset {
			if depth > 0 {
				depth--
			}
		}
		fmt.Fprintf(w, "%s%04d  %s\n", strings.Repeat("  ", depth), i, formatIR(op))
		if op.Kind == ir.LoopStart {
			depth++
		}
	}
}

func formatIR(op ir.Op) string {
	switch op.Kind {
	case ir.Add:
		return fmt.Sprintf("Add(ptr=%d, val=%d)", op.Ptr, op.Val)
	case ir.Set:
		return fmt.Sprintf("Set(ptr=%d, val=%d)", op.Ptr, op.Val)
	case ir.Shift:
		return fmt.Sprintf("Shift(ptr=%d, step=%d)", op.Ptr, op.Step)
	case ir.Mul:
		return fmt.Sprintf("MulAndSetZero(ptr=%d, dests=%v)", op.Ptr, op.MulDests)
	case ir.Moves:
		return fmt.Sprintf("MovesAndSetZero(ptr=%d, dests=%v)", op.Ptr, op.MoveDests)
	case ir.MoveAdd:
		return fmt.Sprintf("MoveAdd(ptr=%d, dest=%d)", op.Ptr, op.Dest)
	case ir.MoveSub:
		return fmt.Sprintf("MoveSub(ptr=%d, dest=%d)", op.Ptr, op.Dest)
	case ir.In:
		return fmt.Sprintf("In(ptr=%d)", op.Ptr)
	case ir.Out:
		return fmt.Sprintf("Out(ptr=%d)", op.Ptr)
	case ir.LoopStart:
		return fmt.Sprintf("LoopStart(ptr=%d, target=%d)", op.Ptr, op.Target)
	case ir.LoopEnd:
		return fmt.Sprintf("LoopEnd(ptr=%d, target=%d)", op.Ptr, op.Target)
	case ir.LoopEndOffset:
		return fmt.Sprintf("LoopEndOffset(ptr=%d, target=%d, offset=%d)", op.Ptr, op.Target, op.Offset)
	case ir.Breakpoint:
		return fmt.Sprintf("Breakpoint(ptr=%d)", op.Ptr)
	case ir.End:
		return "End"
	default:
		return op.Kind.String()
	}
}

// DumpBytecode writes one instruction per line, address-prefixed and
// annotated with its range info when present. When prog.Counts is
// populated, each line is prefixed with floor(log2(count)) in a
// fixed-width bracket.
func DumpBytecode(w io.Writer, prog *bytecode.Program) {
	for i, instr := range prog.Code {
		prefix := "     "
		if prog.Counts != nil {
			if c, ok := prog.Counts[i]; ok && c > 0 {
				prefix = fmt.Sprintf("[%2d] ", bits.Len64(c)-1)
			} else {
				prefix = "[ 0] "
			}
		}
		fmt.Fprintf(w, "%s%04d  %s\n", prefix, i, formatInstr(instr))
	}
}

func formatInstr(instr bytecode.Instr) string {
	s := fmt.Sprintf("%-12s delta=%d", instr.Op, instr.Delta)
	switch instr.Op {
	case bytecode.SingleAdd, bytecode.SingleSet, bytecode.Mul:
		s += fmt.Sprintf(" imm=%d", instr.Imm)
	case bytecode.AddAdd, bytecode.AddSet, bytecode.SetAdd, bytecode.SetSet:
		s += fmt.Sprintf(" imm=%d imm2=%d", instr.Imm, instr.Imm2)
	case bytecode.Shift, bytecode.ShiftAdd, bytecode.ShiftSet,
		bytecode.ShiftP, bytecode.ShiftN, bytecode.ShiftAddP, bytecode.ShiftAddN,
		bytecode.ShiftSetP, bytecode.ShiftSetN:
		s += fmt.Sprintf(" step=%d", instr.Step)
	case bytecode.JmpIfZero, bytecode.JmpIfNotZero:
		s += fmt.Sprintf(" addr=%d", instr.Addr)
	}
	if instr.RangeKind != ranges.None {
		s += fmt.Sprintf(" range=%s[%d,%d)", rangeKindName(instr.RangeKind), instr.RStart, instr.REnd)
	}
	return s
}

func rangeKindName(k ranges.Kind) string {
	switch k {
	case ranges.Positive:
		return "Positive"
	case ranges.Negative:
		return "Negative"
	case ranges.Both:
		return "Both"
	default:
		return "None"
	}
}
