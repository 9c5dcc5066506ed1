package ir

import "testing"

func TestParseScanShift(t *testing.T) {
	ops, err := Parse("[>]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("want 2 ops (Shift, End), got %d: %v", len(ops), ops)
	}
	if ops[0].Kind != Shift || ops[0].Step != 1 {
		t.Fatalf("want Shift(step=1), got %+v", ops[0])
	}
}

func TestParseClearCell(t *testing.T) {
	ops, err := Parse("[-]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != Set || ops[0].Val != 0 {
		t.Fatalf("want Set(0), got %+v", ops)
	}
}

func TestParseFlatMultiply(t *testing.T) {
	ops, err := Parse("[->++<]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != Mul {
		t.Fatalf("want single Mul, got %+v", ops)
	}
	dests := ops[0].MulDests
	if len(dests) != 1 || dests[0].Offset != 1 || dests[0].Factor != 2 {
		t.Fatalf("want one dest offset=1 factor=2, got %+v", dests)
	}
}

func TestParseFlatMoveSingleDest(t *testing.T) {
	ops, err := Parse("[->+<]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != MoveAdd || ops[0].Dest != 1 {
		t.Fatalf("want MoveAdd(dest=1), got %+v", ops)
	}
}

func TestParseFlatMovesTwoDests(t *testing.T) {
	ops, err := Parse("[->+>-<<]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != Moves {
		t.Fatalf("want Moves, got %+v", ops)
	}
	dests := ops[0].MoveDests
	if len(dests) != 2 {
		t.Fatalf("want 2 dests, got %+v", dests)
	}
	if dests[0].Offset != 1 || !dests[0].Positive {
		t.Fatalf("want dest0 offset=1 positive, got %+v", dests[0])
	}
	if dests[1].Offset != 2 || dests[1].Positive {
		t.Fatalf("want dest1 offset=2 negative, got %+v", dests[1])
	}
}

func TestParseGeneralLoop(t *testing.T) {
	// Pointer-unstable loop with I/O disqualifies every peephole but the
	// default rewrite into LoopStart/LoopEndOffset.
	ops, err := Parse("[.>]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ops[0].Kind != LoopStart {
		t.Fatalf("want LoopStart first, got %+v", ops[0])
	}
	last := ops[len(ops)-2]
	if last.Kind != LoopEndOffset || last.Offset != 1 {
		t.Fatalf("want LoopEndOffset(offset=1), got %+v", last)
	}
	if ops[0].Target != len(ops)-2 {
		t.Fatalf("LoopStart.Target should point at LoopEndOffset index, got %d want %d", ops[0].Target, len(ops)-2)
	}
}

func TestParseStableGeneralLoop(t *testing.T) {
	ops, err := Parse("[>+<.]", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var foundEnd bool
	for _, op := range ops {
		if op.Kind == LoopEnd {
			foundEnd = true
		}
		if op.Kind == LoopEndOffset {
			t.Fatalf("stable loop must not produce LoopEndOffset")
		}
	}
	if !foundEnd {
		t.Fatalf("want a LoopEnd, got %+v", ops)
	}
}

func TestParseUnmatchedOpening(t *testing.T) {
	if _, err := Parse("[+", false); err == nil {
		t.Fatalf("want error for unmatched '['")
	}
}

func TestParseUnmatchedClosing(t *testing.T) {
	if _, err := Parse("+]", false); err == nil {
		t.Fatalf("want error for unmatched ']'")
	}
}

func TestParseBreakpointRequiresDebug(t *testing.T) {
	ops, err := Parse("#+", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, op := range ops {
		if op.Kind == Breakpoint {
			t.Fatalf("'#' must be ignored when debug=false")
		}
	}

	ops, err = Parse("#+", true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ops[0].Kind != Breakpoint {
		t.Fatalf("want leading Breakpoint when debug=true, got %+v", ops)
	}
}

func TestParseAdjustCoalesces(t *testing.T) {
	ops, err := Parse("+++", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != Add || ops[0].Val != 3 {
		t.Fatalf("want single Add(3), got %+v", ops)
	}
}

func TestParseWrapAroundByte(t *testing.T) {
	ops, err := Parse("---", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ops[0].Val != 253 { // 3*255 mod 256
		t.Fatalf("want Add(253) from mod-256 accumulation, got %+v", ops[0])
	}
}
