// Package ranges implements the static pointer-range analysis: a single
// right-to-left scan over the IR that, for every pointer-moving op, derives
// the admissible interval of data-pointer values for which the remainder of
// the program (until the next pointer-moving op) stays in bounds.
package ranges

import (
	"loopvm/internal/errors"
	"loopvm/internal/ir"
	"loopvm/internal/tape"
)

// Kind tags which sides of the interval are bounded.
type Kind uint8

const (
	None Kind = iota
	Positive
	Negative
	Both
)

// Range is the admissible pointer interval recorded for one IR index.
// Positive: safe while pointer < End. Negative: safe while pointer >= Start.
// Both: safe while Start <= pointer < End. None: safe everywhere.
type Range struct {
	Kind  Kind
	Start uint16
	End   uint16
}

// InRange reports whether ptr satisfies the recorded guarantee.
func (r Range) InRange(ptr uint) bool {
	switch r.Kind {
	case None:
		return true
	case Positive:
		return ptr < uint(r.End)
	case Negative:
		return ptr >= uint(r.Start)
	case Both:
		return ptr >= uint(r.Start) && ptr < uint(r.End)
	default:
		return false
	}
}

// Info is the result of the analysis: a sparse map from IR index to Range
// (only Shift and LoopEndOffset indices have entries) plus the do_opt_first
// flag.
type Info struct {
	Ranges     map[int]Range
	DoOptFirst bool
}

type window struct {
	lo, hi int
}

func (w *window) extend(p int) {
	if p < w.lo {
		w.lo = p
	}
	if p > w.hi {
		w.hi = p
	}
}

// Analyze runs the right-to-left scan described in spec §4.3.
func Analyze(ops []ir.Op) (*Info, error) {
	info := &Info{Ranges: map[int]Range{}}
	if len(ops) == 0 {
		info.DoOptFirst = true
		return info, nil
	}

	w := window{lo: ops[len(ops)-1].Ptr, hi: ops[len(ops)-1].Ptr}
	var loopStack []window

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]

		switch op.Kind {
		case ir.Mul:
			w.extend(op.Ptr)
			for _, d := range op.MulDests {
				w.extend(d.Offset)
			}
		case ir.Moves:
			w.extend(op.Ptr)
			for _, d := range op.MoveDests {
				w.extend(d.Offset)
			}
		case ir.MoveAdd, ir.MoveSub:
			w.extend(op.Ptr)
			w.extend(op.Dest)
		default:
			w.extend(op.Ptr)
		}

		switch op.Kind {
		case ir.Shift:
			r, ok := convert(w, op.Ptr)
			if !ok {
				return nil, &errors.RangeError{IRPos: i, Lo: w.lo, Hi: w.hi}
			}
			info.Ranges[i] = r
			w = window{lo: op.Ptr, hi: op.Ptr}

		case ir.LoopEndOffset:
			r, ok := convert(w, op.Ptr)
			if !ok {
				return nil, &errors.RangeError{IRPos: i, Lo: w.lo, Hi: w.hi}
			}
			info.Ranges[i] = r
			loopStack = append(loopStack, w)
			w = window{lo: op.Ptr, hi: op.Ptr}

		case ir.LoopStart:
			end := ops[op.Target]
			if end.Kind == ir.LoopEndOffset {
				n := len(loopStack)
				post := loopStack[n-1]
				loopStack = loopStack[:n-1]
				w.extend(post.lo)
				w.extend(post.hi)
				r, ok := convert(w, end.Ptr)
				if !ok {
					return nil, &errors.RangeError{IRPos: op.Target, Lo: w.lo, Hi: w.hi}
				}
				info.Ranges[op.Target] = r
			}
		}
	}

	info.DoOptFirst = w.lo >= 0 && w.hi < tape.Len
	return info, nil
}

// convert turns an accumulated window into a Range relative to pointer,
// reporting ok=false when a derived bound overflows u16 (spec §4.3: "the
// program moves the pointer by more than tape-length in one op").
func convert(w window, pointer int) (Range, bool) {
	if w.lo == pointer && w.hi == pointer {
		return Range{Kind: None}, true
	}

	var start, end int64 = -1, -1
	if w.lo < pointer {
		start = int64(pointer - w.lo)
		if start < 0 || start > 0xFFFF {
			return Range{}, false
		}
	}
	if w.hi > pointer {
		end = int64(tape.Len) - int64(w.hi-pointer)
		if end < 0 || end > 0xFFFF {
			return Range{}, false
		}
	}

	switch {
	case start >= 0 && end >= 0:
		return Range{Kind: Both, Start: uint16(start), End: uint16(end)}, true
	case start >= 0:
		return Range{Kind: Negative, Start: uint16(start)}, true
	case end >= 0:
		return Range{Kind: Positive, End: uint16(end)}, true
	default:
		return Range{Kind: None}, true
	}
}
