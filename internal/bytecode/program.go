package bytecode

import "loopvm/internal/ranges"

// Instr is one bytecode instruction. Not every field is meaningful for
// every Op; the field comments below say which variants read each field.
type Instr struct {
	Op Op

	Delta int32 // pointer delta applied before executing this instruction

	Imm  byte // primary immediate: Add amount / Set value / Mul factor
	Imm2 byte // secondary immediate, for pair-fused arithmetic

	Step int32 // Shift: non-zero step applied while cell != 0

	Addr uint32 // absolute bytecode index: loop jump target, or Mul/MoveStart skip target
	Off  int32  // dest offset relative to this instruction's pointer (Mul/Move family),
	// or a backward-relative offset for range-checking JNZ variants (subtract from current PC)
	Off2 int32 // second dest offset, for DoubleMove variants

	RangeKind ranges.Kind
	RStart    uint16
	REnd      uint16
}

// InRange reports whether ptr satisfies the range guarantee attached to
// this instruction, consulting the RStart/REnd bounds alongside the kind
// rather than just the kind (see ranges.Range.InRange).
func (in Instr) InRange(ptr uint) bool {
	return ranges.Range{Kind: in.RangeKind, Start: in.RStart, End: in.REnd}.InRange(ptr)
}

// Program is the bytecode array plus an optional per-instruction execution
// count used for tracing (internal/diag). The program counter itself is
// owned by the runtime (internal/vm), not by Program.
type Program struct {
	Code   []Instr
	Counts map[int]uint64
}

// Hit increments the optional execution-count side-table for pc. A no-op
// unless tracing has been enabled via EnableCounts.
func (p *Program) Hit(pc int) {
	if p.Counts != nil {
		p.Counts[pc]++
	}
}

// EnableCounts turns on op-count tracing for subsequent execution.
func (p *Program) EnableCounts() {
	if p.Counts == nil {
		p.Counts = make(map[int]uint64)
	}
}
