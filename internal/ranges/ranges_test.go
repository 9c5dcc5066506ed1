package ranges

import (
	"testing"

	"loopvm/internal/ir"
)

func TestAnalyzeNoneForStableProgram(t *testing.T) {
	// "+++" parses to a single Add at ptr=0; no Shift/LoopEndOffset indices
	// exist, so the range table should be empty and do_opt_first true (the
	// whole program stays at pointer 0, well inside [0, Len)).
	ops, err := ir.Parse("+++", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	info, err := Analyze(ops)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(info.Ranges) != 0 {
		t.Fatalf("want no range entries, got %v", info.Ranges)
	}
	if !info.DoOptFirst {
		t.Fatalf("want DoOptFirst=true")
	}
}

func TestAnalyzeShiftGetsPositiveRange(t *testing.T) {
	// "[>]>+." : a scan-shift at ptr 0, then an Add and an Out one cell to
	// the right of the cell the shift stops on (ptr 1). The window for the
	// Shift index is [0, 1], so relative to pointer 0 it is bounded only
	// above: Positive with End = Len - 1.
	ops, err := ir.Parse("[>]>+.", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	info, err := Analyze(ops)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	r, ok := info.Ranges[0]
	if !ok {
		t.Fatalf("want a range entry for the Shift op at index 0, got %v", info.Ranges)
	}
	if r.Kind != Positive || r.End != 65535 {
		t.Fatalf("want Positive(End=65535), got %+v", r)
	}
}

func TestAnalyzeLoopEndOffsetMergesPostLoopWindow(t *testing.T) {
	// "[.>]++": the LoopEndOffset sits at ptr 1 and the post-loop Add is at
	// ptr 1 too, so on its own that entry would be None. Merging in the body
	// window (the Out at ptr 0) when the scan reaches LoopStart turns it
	// into Negative(Start=1).
	ops, err := ir.Parse("[.>]++", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	info, err := Analyze(ops)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var sawLoopEndOffset bool
	for i, op := range ops {
		if op.Kind == ir.LoopEndOffset {
			sawLoopEndOffset = true
			r, ok := info.Ranges[i]
			if !ok {
				t.Fatalf("want a range entry at LoopEndOffset index %d", i)
			}
			if r.Kind != Negative || r.Start != 1 {
				t.Fatalf("want merged Negative(Start=1) at index %d, got %+v", i, r)
			}
		}
	}
	if !sawLoopEndOffset {
		t.Fatalf("expected the source to produce a LoopEndOffset")
	}
}

func TestConvertStableWindowIsNone(t *testing.T) {
	r, ok := convert(window{lo: 5, hi: 5}, 5)
	if !ok {
		t.Fatalf("convert should not fail on a stable window")
	}
	if r.Kind != None {
		t.Fatalf("want None, got %v", r.Kind)
	}
}

func TestConvertBothSides(t *testing.T) {
	r, ok := convert(window{lo: 2, hi: 10}, 5)
	if !ok {
		t.Fatalf("convert failed unexpectedly")
	}
	if r.Kind != Both {
		t.Fatalf("want Both, got %v", r.Kind)
	}
	if r.Start != 3 { // 5 - 2
		t.Fatalf("want Start=3, got %d", r.Start)
	}
}

func TestConvertOverflowFails(t *testing.T) {
	_, ok := convert(window{lo: -(1 << 17), hi: 0}, 0)
	if ok {
		t.Fatalf("want overflow to fail conversion")
	}
}
