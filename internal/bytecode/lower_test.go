package bytecode

import (
	"testing"

	"loopvm/internal/ir"
	"loopvm/internal/ranges"
)

func compile(t *testing.T, src string) *Program {
	t.Helper()
	ops, err := ir.Parse(src, false)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	info, err := ranges.Analyze(ops)
	if err != nil {
		t.Fatalf("Analyze(%q): %v", src, err)
	}
	prog, err := Lower(ops, info)
	if err != nil {
		t.Fatalf("Lower(%q): %v", src, err)
	}
	return prog
}

func TestLowerSingleAdd(t *testing.T) {
	prog := compile(t, "+++")
	if len(prog.Code) != 2 { // SingleAdd, End
		t.Fatalf("want 2 instructions, got %d: %+v", len(prog.Code), prog.Code)
	}
	if prog.Code[0].Op != SingleAdd || prog.Code[0].Imm != 3 {
		t.Fatalf("want SingleAdd(3), got %+v", prog.Code[0])
	}
}

func TestLowerAddSetFusion(t *testing.T) {
	// "+[-]": an Add at ptr 0 followed directly (after the clear-cell
	// peephole collapses "[-]" to Set(0) at the same pointer) by a Set.
	prog := compile(t, "+[-]")
	if prog.Code[0].Op != AddSet {
		t.Fatalf("want AddSet fusion, got %+v", prog.Code[0])
	}
}

func TestLowerClearThenMoveFuses(t *testing.T) {
	// "[-]>+": Set(0) at ptr 0, then an Add at ptr 1. A '+' right after the
	// clear (no move) would fold into the Set itself and leave nothing to fuse.
	prog := compile(t, "[-]>+")
	if prog.Code[0].Op != SetAdd {
		t.Fatalf("want SetAdd fusion, got %+v", prog.Code[0])
	}
}

func TestLowerMulExpansion(t *testing.T) {
	prog := compile(t, "[->++<]")
	if prog.Code[0].Op != MulStart {
		t.Fatalf("want MulStart, got %+v", prog.Code[0])
	}
	if prog.Code[1].Op != Mul || prog.Code[1].Imm != 2 || prog.Code[1].Off != 1 {
		t.Fatalf("want Mul(off=1,imm=2), got %+v", prog.Code[1])
	}
	if int(prog.Code[0].Addr) != 2 {
		t.Fatalf("MulStart.Addr should skip to index 2, got %d", prog.Code[0].Addr)
	}
}

func TestLowerSingleMoveAdd(t *testing.T) {
	prog := compile(t, "[->+<]")
	if prog.Code[0].Op != SingleMoveAdd || prog.Code[0].Off != 1 {
		t.Fatalf("want SingleMoveAdd(off=1), got %+v", prog.Code[0])
	}
}

func TestLowerDoubleMove(t *testing.T) {
	prog := compile(t, "[->+>-<<]")
	if prog.Code[0].Op != DoubleMoveAddSub {
		t.Fatalf("want DoubleMoveAddSub, got %+v", prog.Code[0])
	}
	if prog.Code[0].Off != 1 || prog.Code[0].Off2 != 2 {
		t.Fatalf("want offsets 1,2, got %+v", prog.Code[0])
	}
}

func TestLowerLoopJumpPatching(t *testing.T) {
	prog := compile(t, "[>+<.]")
	if prog.Code[0].Op != JmpIfZero {
		t.Fatalf("want JmpIfZero first, got %+v", prog.Code[0])
	}
	jnzIdx := -1
	for i, instr := range prog.Code {
		if instr.Op == JmpIfNotZero {
			jnzIdx = i
		}
	}
	if jnzIdx == -1 {
		t.Fatalf("want a JmpIfNotZero in %+v", prog.Code)
	}
	if int(prog.Code[0].Addr) != jnzIdx+1 {
		t.Fatalf("JmpIfZero.Addr should be just past JmpIfNotZero, got %d want %d", prog.Code[0].Addr, jnzIdx+1)
	}
	if int(prog.Code[jnzIdx].Addr) != 1 {
		t.Fatalf("JmpIfNotZero.Addr should point at index 1, got %d", prog.Code[jnzIdx].Addr)
	}
}

func TestLowerUnstableLoopUsesRangeCheckJNZ(t *testing.T) {
	prog := compile(t, "[.>]")
	var sawRangeJNZ bool
	for _, instr := range prog.Code {
		switch instr.Op {
		case PositiveRangeCheckJNZ, NegativeRangeCheckJNZ, BothRangeCheckJNZ:
			sawRangeJNZ = true
		}
	}
	if !sawRangeJNZ {
		t.Fatalf("want a range-checking loop-close jump in %+v", prog.Code)
	}
}

func TestLowerEndsWithEnd(t *testing.T) {
	prog := compile(t, "+")
	last := prog.Code[len(prog.Code)-1]
	if last.Op != End {
		t.Fatalf("want trailing End, got %+v", last)
	}
}
