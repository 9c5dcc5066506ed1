package bytecode

import (
	"loopvm/internal/errors"
	"loopvm/internal/ir"
	"loopvm/internal/ranges"
)

// Lower performs the single left-to-right bytecode lowering pass described
// in spec §4.4: pair fusion, shift range encoding, Mul/Move expansion, and
// loop jump patching.
func Lower(ops []ir.Op, info *ranges.Info) (*Program, error) {
	l := &lowerer{ops: ops, info: info, prog: &Program{}}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.prog, nil
}

type lowerer struct {
	ops     []ir.Op
	info    *ranges.Info
	prog    *Program
	lastPtr int
	// loopStack holds the bytecode index of each still-open JmpIfZero,
	// pushed at LoopStart and popped at the matching LoopEnd/LoopEndOffset.
	loopStack []int
}

func (l *lowerer) emit(instr Instr) int {
	l.prog.Code = append(l.prog.Code, instr)
	return len(l.prog.Code) - 1
}

func (l *lowerer) delta(irPos int, ptr int) (int32, error) {
	d := ptr - l.lastPtr
	if d < -32768 || d > 32767 {
		return 0, errors.DeltaOverflow(int64(d), irPos)
	}
	return int32(d), nil
}

func fitStep(step int, irPos int) (int32, error) {
	if step < -32768 || step > 32767 {
		return 0, errors.ShiftStepOverflow(int64(step), irPos)
	}
	return int32(step), nil
}

func (l *lowerer) run() error {
	i := 0
	n := len(l.ops)
	for i < n {
		op := l.ops[i]

		switch op.Kind {
		case ir.Add, ir.Set:
			if i+1 < n && isAddOrSet(l.ops[i+1].Kind) {
				next := l.ops[i+1]
				d, err := l.delta(i, op.Ptr)
				if err != nil {
					return err
				}
				l.emit(Instr{Op: fuseAddSet(op.Kind, next.Kind), Delta: d, Imm: op.Val, Imm2: next.Val})
				l.lastPtr = next.Ptr
				i += 2
				continue
			}
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			bop := SingleAdd
			if op.Kind == ir.Set {
				bop = SingleSet
			}
			l.emit(Instr{Op: bop, Delta: d, Imm: op.Val})
			l.lastPtr = op.Ptr
			i++

		case ir.In:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			l.emit(Instr{Op: In, Delta: d})
			l.lastPtr = op.Ptr
			i++

		case ir.Out:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			l.emit(Instr{Op: Out, Delta: d})
			l.lastPtr = op.Ptr
			i++

		case ir.Breakpoint:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			l.emit(Instr{Op: Breakpoint, Delta: d})
			l.lastPtr = op.Ptr
			i++

		case ir.Shift:
			if err := l.lowerShift(i); err != nil {
				return err
			}
			// shiftAdvance, not lowerShift, advances i and lastPtr
			adv, err := l.shiftAdvance(i)
			if err != nil {
				return err
			}
			i += adv

		case ir.Mul:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			startIdx := l.emit(Instr{Op: MulStart, Delta: d})
			for _, dest := range op.MulDests {
				l.emit(Instr{Op: Mul, Off: int32(dest.Offset - op.Ptr), Imm: dest.Factor})
			}
			l.prog.Code[startIdx].Addr = uint32(len(l.prog.Code))
			l.lastPtr = op.Ptr
			i++

		case ir.Moves:
			if err := l.lowerMoves(op, i); err != nil {
				return err
			}
			l.lastPtr = op.Ptr
			i++

		case ir.MoveAdd, ir.MoveSub:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			bop := SingleMoveAdd
			if op.Kind == ir.MoveSub {
				bop = SingleMoveSub
			}
			l.emit(Instr{Op: bop, Delta: d, Off: int32(op.Dest - op.Ptr)})
			l.lastPtr = op.Ptr
			i++

		case ir.LoopStart:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			idx := l.emit(Instr{Op: JmpIfZero, Delta: d})
			l.loopStack = append(l.loopStack, idx)
			l.lastPtr = op.Ptr
			i++

		case ir.LoopEnd:
			d, err := l.delta(i, op.Ptr)
			if err != nil {
				return err
			}
			n := len(l.loopStack)
			start := l.loopStack[n-1]
			l.loopStack = l.loopStack[:n-1]
			idx := l.emit(Instr{Op: JmpIfNotZero, Delta: d, Addr: uint32(start + 1)})
			l.prog.Code[start].Addr = uint32(idx + 1)
			l.lastPtr = op.Ptr
			i++

		case ir.LoopEndOffset:
			if err := l.lowerLoopEndOffset(op, i); err != nil {
				return err
			}
			l.lastPtr = op.Ptr
			i++

		case ir.End:
			l.emit(Instr{Op: End})
			i++

		default:
			i++
		}
	}
	return nil
}

func isAddOrSet(k ir.Kind) bool { return k == ir.Add || k == ir.Set }

func fuseAddSet(cur, next ir.Kind) Op {
	switch {
	case cur == ir.Add && next == ir.Add:
		return AddAdd
	case cur == ir.Add && next == ir.Set:
		return AddSet
	case cur == ir.Set && next == ir.Add:
		return SetAdd
	default:
		return SetSet
	}
}

// lowerShift emits the bytecode for a Shift IR op, handling range encoding
// and optional pair fusion with a following Add/Set (spec §4.4).
func (l *lowerer) lowerShift(i int) error {
	op := l.ops[i]
	d, err := l.delta(i, op.Ptr)
	if err != nil {
		return err
	}
	step, err := fitStep(op.Step, i)
	if err != nil {
		return err
	}
	r := l.info.Ranges[i]

	fuseEligible := i+1 < len(l.ops) && isAddOrSet(l.ops[i+1].Kind) && abs32(step) <= 127

	if r.Kind == ranges.Both {
		// Both never fuses: plain Shift, then a standalone range check.
		l.emit(Instr{Op: Shift, Delta: d, Step: step})
		l.emit(Instr{Op: BothRangeCheck, RangeKind: ranges.Both, RStart: r.Start, REnd: r.End})
		return nil
	}

	if !fuseEligible {
		l.emit(Instr{Op: shiftOp(r.Kind, noneFused), Delta: d, Step: step, RangeKind: r.Kind, RStart: r.Start, REnd: r.End})
		return nil
	}

	next := l.ops[i+1]
	fused := addFused
	if next.Kind == ir.Set {
		fused = setFused
	}
	l.emit(Instr{Op: shiftOp(r.Kind, fused), Delta: d, Step: step, Imm: next.Val, RangeKind: r.Kind, RStart: r.Start, REnd: r.End})
	return nil
}

// shiftAdvance recomputes how far i should move and updates lastPtr after
// lowerShift has already emitted the instruction(s); kept separate so
// lowerShift's error paths stay simple single-purpose emits.
func (l *lowerer) shiftAdvance(i int) (int, error) {
	op := l.ops[i]
	r := l.info.Ranges[i]
	if r.Kind == ranges.Both {
		l.lastPtr = op.Ptr
		return 1, nil
	}
	step, _ := fitStep(op.Step, i)
	fuseEligible := i+1 < len(l.ops) && isAddOrSet(l.ops[i+1].Kind) && abs32(step) <= 127
	if fuseEligible {
		l.lastPtr = l.ops[i+1].Ptr
		return 2, nil
	}
	l.lastPtr = op.Ptr
	return 1, nil
}

type fuseKind uint8

const (
	noneFused fuseKind = iota
	addFused
	setFused
)

func shiftOp(rk ranges.Kind, f fuseKind) Op {
	switch f {
	case addFused:
		if rk == ranges.Positive {
			return ShiftAddP
		}
		if rk == ranges.Negative {
			return ShiftAddN
		}
		return ShiftAdd
	case setFused:
		if rk == ranges.Positive {
			return ShiftSetP
		}
		if rk == ranges.Negative {
			return ShiftSetN
		}
		return ShiftSet
	default:
		if rk == ranges.Positive {
			return ShiftP
		}
		if rk == ranges.Negative {
			return ShiftN
		}
		return Shift
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// lowerMoves expands a MovesAndSetZero IR op (always >=2 dests, all
// factors +-1): a 2-dest op becomes one DoubleMove{Add,Sub}{Add,Sub}
// instruction; 3+ dests use MoveStart followed by one MoveAdd/MoveSub per
// destination.
func (l *lowerer) lowerMoves(op ir.Op, irPos int) error {
	d, err := l.delta(irPos, op.Ptr)
	if err != nil {
		return err
	}
	if len(op.MoveDests) == 2 {
		a, b := op.MoveDests[0], op.MoveDests[1]
		var bop Op
		switch {
		case a.Positive && b.Positive:
			bop = DoubleMoveAddAdd
		case a.Positive && !b.Positive:
			bop = DoubleMoveAddSub
		case !a.Positive && b.Positive:
			bop = DoubleMoveSubAdd
		default:
			bop = DoubleMoveSubSub
		}
		l.emit(Instr{Op: bop, Delta: d, Off: int32(a.Offset - op.Ptr), Off2: int32(b.Offset - op.Ptr)})
		return nil
	}

	startIdx := l.emit(Instr{Op: MoveStart, Delta: d})
	for _, dest := range op.MoveDests {
		bop := MoveAdd
		if !dest.Positive {
			bop = MoveSub
		}
		l.emit(Instr{Op: bop, Off: int32(dest.Offset - op.Ptr)})
	}
	l.prog.Code[startIdx].Addr = uint32(len(l.prog.Code))
	return nil
}

// lowerLoopEndOffset emits the bytecode for a pointer-unstable loop close,
// choosing a plain JmpIfNotZero or a range-checking JNZ variant depending
// on the recorded range info, and patches the matching JmpIfZero's target.
func (l *lowerer) lowerLoopEndOffset(op ir.Op, irPos int) error {
	d, err := l.delta(irPos, op.Ptr)
	if err != nil {
		return err
	}
	n := len(l.loopStack)
	start := l.loopStack[n-1]
	l.loopStack = l.loopStack[:n-1]

	r := l.info.Ranges[irPos]
	var idx int
	switch r.Kind {
	case ranges.None:
		idx = l.emit(Instr{Op: JmpIfNotZero, Delta: d, Addr: uint32(start + 1)})
	case ranges.Positive:
		idx = l.emit(Instr{Op: PositiveRangeCheckJNZ, Delta: d, RangeKind: r.Kind, REnd: r.End})
	case ranges.Negative:
		idx = l.emit(Instr{Op: NegativeRangeCheckJNZ, Delta: d, RangeKind: r.Kind, RStart: r.Start})
	case ranges.Both:
		idx = l.emit(Instr{Op: BothRangeCheckJNZ, Delta: d, RangeKind: r.Kind, RStart: r.Start, REnd: r.End})
	}
	if r.Kind != ranges.None {
		// Backward-relative offset: subtract-from-current to reach start+1.
		l.prog.Code[idx].Off = int32(idx - start - 1)
	}
	l.prog.Code[start].Addr = uint32(idx + 1)
	return nil
}
