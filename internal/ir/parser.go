package ir

import "loopvm/internal/errors"

// loopFrame tracks one open '[' while scanning: where its body starts in
// the emitted op stream, the pointer value at that point, the source
// position (for error messages), and whether the body seen so far still
// qualifies as "flat" (no nested loop, no I/O).
type loopFrame struct {
	bodyStart int
	ptrAtLoop int
	pos       int
	flat      bool
}

type parser struct {
	ops   []Op
	ptr   int
	stack []loopFrame
	debug bool // whether '#' breakpoints are recognized
}

// Parse performs the single left-to-right scan described in spec §4.2:
// parse source into IR, folding +/- runs, and replacing the four loop
// idioms (scan shift, clear-cell, flat multiply/move, general loop) via
// peephole rules applied in priority order at each ']'. debug enables
// recognition of the '#' breakpoint marker; when false, '#' is a comment
// character like any other non-alphabet byte.
func Parse(src string, debug bool) ([]Op, error) {
	p := &parser{debug: debug}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '+':
			p.emitAdjust(1)
		case '-':
			p.emitAdjust(255)
		case '>':
			p.ptr++
		case '<':
			p.ptr--
		case '.':
			p.markIO()
			p.ops = append(p.ops, Op{Kind: Out, Ptr: p.ptr})
		case ',':
			p.markIO()
			p.ops = append(p.ops, Op{Kind: In, Ptr: p.ptr})
		case '#':
			if p.debug {
				p.ops = append(p.ops, Op{Kind: Breakpoint, Ptr: p.ptr})
			}
		case '[':
			p.openLoop(i)
		case ']':
			if err := p.closeLoop(i); err != nil {
				return nil, err
			}
		default:
			// comment by exclusion: every byte outside the eight semantic
			// chars (plus debug-only '#') is ignored, including non-ASCII
			// UTF-8 continuation bytes.
		}
	}
	if len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		return nil, errors.UnmatchedOpeningBracket(top.pos)
	}
	p.ops = append(p.ops, Op{Kind: End, Ptr: p.ptr})
	return p.ops, nil
}

// emitAdjust folds a +1/-1 (delta already reduced mod 256, so -1 is passed
// as 255) into the previous op when it operates at the same pointer, is
// itself an Add or Set, and lies inside the innermost open loop's body (an
// op emitted before that loop's '[' is never folded into); otherwise it
// starts a new Add op.
func (p *parser) emitAdjust(delta byte) {
	floor := 0
	if s := len(p.stack); s > 0 {
		floor = p.stack[s-1].bodyStart
	}
	if n := len(p.ops); n > floor {
		last := &p.ops[n-1]
		if last.Ptr == p.ptr && (last.Kind == Add || last.Kind == Set) {
			last.Val += delta
			return
		}
	}
	p.ops = append(p.ops, Op{Kind: Add, Ptr: p.ptr, Val: delta})
}

// markIO clears the flat bit of the innermost open loop: I/O disqualifies
// the flat-multiply/flat-move peepholes (rule 4).
func (p *parser) markIO() {
	if n := len(p.stack); n > 0 {
		p.stack[n-1].flat = false
	}
}

func (p *parser) openLoop(pos int) {
	if n := len(p.stack); n > 0 {
		// A nested loop disqualifies the enclosing loop's flat peepholes.
		p.stack[n-1].flat = false
	}
	p.stack = append(p.stack, loopFrame{
		bodyStart: len(p.ops),
		ptrAtLoop: p.ptr,
		pos:       pos,
		flat:      true,
	})
}

func (p *parser) closeLoop(pos int) error {
	n := len(p.stack)
	if n == 0 {
		return errors.UnmatchedClosingBracket(pos)
	}
	frame := p.stack[n-1]
	p.stack = p.stack[:n-1]

	startPtr := frame.ptrAtLoop
	endPtr := p.ptr
	body := p.ops[frame.bodyStart:]
	stable := startPtr == endPtr

	switch {
	case len(body) == 0 && !stable:
		// Rule 2: pointer-unstable, empty body -> Shift.
		p.ops = p.ops[:frame.bodyStart]
		p.ops = append(p.ops, Op{Kind: Shift, Ptr: startPtr, Step: endPtr - startPtr})
		// The shift stops on whichever cell is zero; later ops are
		// measured from that cell, which is the Shift's own pointer.
		p.ptr = startPtr

	case stable && len(body) == 1 && body[0].Kind == Add && body[0].Val == 255 && body[0].Ptr == startPtr:
		// Rule 3: clear cell.
		p.ops = p.ops[:frame.bodyStart]
		p.ops = append(p.ops, Op{Kind: Set, Ptr: startPtr, Val: 0})

	case stable && frame.flat && isFlatMultiply(body, startPtr):
		// Rule 4: flat multiplication/move.
		dests, allPM1 := collectMulDests(body, startPtr)
		p.ops = p.ops[:frame.bodyStart]
		if len(dests) == 1 && allPM1 {
			d := dests[0]
			if d.Factor == 1 {
				p.ops = append(p.ops, Op{Kind: MoveAdd, Ptr: startPtr, Dest: d.Offset})
			} else {
				p.ops = append(p.ops, Op{Kind: MoveSub, Ptr: startPtr, Dest: d.Offset})
			}
		} else if allPM1 {
			moveDests := make([]MoveDest, len(dests))
			for i, d := range dests {
				moveDests[i] = MoveDest{Offset: d.Offset, Positive: d.Factor == 1}
			}
			p.ops = append(p.ops, Op{Kind: Moves, Ptr: startPtr, MoveDests: moveDests})
		} else {
			p.ops = append(p.ops, Op{Kind: Mul, Ptr: startPtr, MulDests: dests})
		}

	default:
		// Rule 5: default, rewrite '[' to LoopStart/LoopEnd(WithOffset).
		startIdx := frame.bodyStart
		p.ops = append(p.ops, Op{})
		copy(p.ops[startIdx+1:], p.ops[startIdx:len(p.ops)-1])
		// Nested loops in the body moved up by one index; so did their targets.
		for k := startIdx + 1; k < len(p.ops); k++ {
			switch p.ops[k].Kind {
			case LoopStart, LoopEnd, LoopEndOffset:
				p.ops[k].Target++
			}
		}
		endIdx := len(p.ops)
		p.ops[startIdx] = Op{Kind: LoopStart, Ptr: startPtr, Target: endIdx}
		if stable {
			p.ops = append(p.ops, Op{Kind: LoopEnd, Ptr: endPtr, Target: startIdx})
		} else {
			p.ops = append(p.ops, Op{Kind: LoopEndOffset, Ptr: endPtr, Target: startIdx, Offset: endPtr - startPtr})
		}
	}
	return nil
}

// isFlatMultiply checks rule 4's shape: body contains only Add ops, exactly
// one of which targets startPtr with value 255 (the decrement), and no
// other op targets startPtr.
func isFlatMultiply(body []Op, startPtr int) bool {
	decrements := 0
	for _, op := range body {
		if op.Kind != Add {
			return false
		}
		if op.Ptr == startPtr {
			decrements++
			if op.Val != 255 {
				return false
			}
		}
	}
	return decrements == 1
}

// collectMulDests gathers the non-startPtr Add ops into MulDest entries,
// merging repeated offsets (mod-256 factor accumulation), and reports
// whether every factor is +-1 (so the caller can emit the cheaper
// MovesAndSetZero/MoveAdd/MoveSub specializations).
func collectMulDests(body []Op, startPtr int) ([]MulDest, bool) {
	var dests []MulDest
	index := map[int]int{} // offset -> position in dests
	for _, op := range body {
		if op.Ptr == startPtr {
			continue
		}
		if i, ok := index[op.Ptr]; ok {
			dests[i].Factor += op.Val
		} else {
			index[op.Ptr] = len(dests)
			dests = append(dests, MulDest{Offset: op.Ptr, Factor: op.Val})
		}
	}
	allPM1 := true
	for _, d := range dests {
		if d.Factor != 1 && d.Factor != 255 {
			allPM1 = false
			break
		}
	}
	return dests, allPM1
}
