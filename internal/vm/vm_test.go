package vm

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"loopvm/internal/bytecode"
	"loopvm/internal/ir"
	"loopvm/internal/ranges"
	"loopvm/internal/tape"
)

func runSource(t *testing.T, src string, input string, stepLimit uint64) (string, error) {
	t.Helper()
	ops, err := ir.Parse(src, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	info, err := ranges.Analyze(ops)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	prog, err := bytecode.Lower(ops, info)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var out bytes.Buffer
	m := NewMachine(prog, tape.New(), strings.NewReader(input), &out, false, stepLimit)
	err = m.Run(context.Background(), info)
	return out.String(), err
}

func TestMultiplyLoopProducesTwentyFive(t *testing.T) {
	out, err := runSource(t, "+++++[>+++++<-]>.", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{25}) {
		t.Fatalf("want byte 25, got %v", []byte(out))
	}
}

func TestMultiplyLoopProducesFifteen(t *testing.T) {
	out, err := runSource(t, "++[>+++++++<-]>+.", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{15}) {
		t.Fatalf("want byte 15, got %v", []byte(out))
	}
}

func TestEchoPlusOne(t *testing.T) {
	out, err := runSource(t, ",+.", "A", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "B" {
		t.Fatalf("want %q, got %q", "B", out)
	}
}

func TestInfiniteLoopTimesOut(t *testing.T) {
	_, err := runSource(t, "+[]", "", 10000)
	if err == nil {
		t.Fatalf("want a timeout error")
	}
}

func TestMultiplyThreeTimesOne(t *testing.T) {
	out, err := runSource(t, "+++[>+<-]>.", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{3}) {
		t.Fatalf("want byte 3, got %v", []byte(out))
	}
}

func TestMoveThenClearLeavesCellZero(t *testing.T) {
	// "[>+<-][-]": the first loop moves cell 0's value into cell 1 (a
	// single-dest MoveAdd peephole), so cell 0 is already zero when the
	// trailing "[-]" (peepholed to Set(0)) runs. Cell 0 is preloaded via "+++".
	out, err := runSource(t, "+++[>+<-][-].", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{0}) {
		t.Fatalf("want cell 0 == 0, got %v", []byte(out))
	}
}

func TestEOFReadsZero(t *testing.T) {
	out, err := runSource(t, ",.", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{0}) {
		t.Fatalf("want 0 at EOF, got %v", []byte(out))
	}
}

func TestMulAndSetZeroSkipsOnZeroSource(t *testing.T) {
	// Cell 0 starts at zero, so the "[->++<]" multiply loop's body never
	// executes; the peepholed MulAndSetZero (MulStart + Mul) must take the
	// MulStart skip target and leave cell 1 at zero.
	out, err := runSource(t, "[->++<]>.", "", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != string([]byte{0}) {
		t.Fatalf("want cell 1 == 0, got %v", []byte(out))
	}
}

func TestDeoptAndOptAgreeOnOutput(t *testing.T) {
	// Runs the same program once starting in the deopt tier and once in the
	// opt tier (by overriding DoOptFirst); both runs must print the same byte.
	src := "+++++[>+++++<-]>++++++++++."
	ops, err := ir.Parse(src, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var outs [2]string
	for i, opt := range []bool{false, true} {
		info, err := ranges.Analyze(ops)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		prog, err := bytecode.Lower(ops, info)
		if err != nil {
			t.Fatalf("Lower: %v", err)
		}
		info.DoOptFirst = opt
		var buf bytes.Buffer
		m := NewMachine(prog, tape.New(), strings.NewReader(""), &buf, false, 0)
		if err := m.Run(context.Background(), info); err != nil {
			t.Fatalf("Run (opt first=%v): %v", opt, err)
		}
		outs[i] = buf.String()
	}
	if outs[0] != outs[1] {
		t.Fatalf("deopt output %v differs from opt output %v", []byte(outs[0]), []byte(outs[1]))
	}
	out := outs[1]
	if len(out) != 1 || out[0] != 35 {
		t.Fatalf("want byte 35, got %v", []byte(out))
	}
}
