package vm

import (
	"loopvm/internal/bytecode"
	"loopvm/internal/errors"
	"loopvm/internal/ranges"
	"loopvm/internal/tape"
)

// stepOpt executes exactly one bytecode instruction using the unchecked
// tape view. Range-bearing ops invert the deopt tier's test: the guarantee
// is checked *before* yielding, and escaping it signals a switch back to
// Deopt so the next step re-validates bounds (spec §4.5). Range-check JNZ
// variants resolve the branch target before testing the range, so tier
// re-entry resumes at the correct PC either way.
func (m *Machine) stepOpt(v *tape.View) (signal, Tier, error) {
	prog := m.Program
	if m.PC >= len(prog.Code) {
		return sigEnd, Opt, nil
	}
	instr := prog.Code[m.PC]
	prog.Hit(m.PC)

	switch instr.Op {
	case bytecode.End:
		return sigEnd, Opt, nil

	case bytecode.SingleAdd:
		v.Move(int(instr.Delta))
		v.Add(instr.Imm)
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.SingleSet:
		v.Move(int(instr.Delta))
		v.Set(instr.Imm)
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.AddAdd, bytecode.AddSet, bytecode.SetAdd, bytecode.SetSet:
		v.Move(int(instr.Delta))
		if instr.Op == bytecode.AddAdd || instr.Op == bytecode.AddSet {
			v.Add(instr.Imm)
		} else {
			v.Set(instr.Imm)
		}
		if instr.Op == bytecode.AddAdd || instr.Op == bytecode.SetAdd {
			v.Add(instr.Imm2)
		} else {
			v.Set(instr.Imm2)
		}
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.In:
		v.Move(int(instr.Delta))
		b, err := m.readByte()
		if err != nil {
			return 0, 0, err
		}
		v.Set(b)
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.Out:
		v.Move(int(instr.Delta))
		if err := m.writeByte(v.Get()); err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.Breakpoint:
		v.Move(int(instr.Delta))
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.Shift, bytecode.ShiftAdd, bytecode.ShiftSet,
		bytecode.ShiftP, bytecode.ShiftN, bytecode.ShiftAddP, bytecode.ShiftAddN,
		bytecode.ShiftSetP, bytecode.ShiftSetN:
		return m.optShift(v, instr)

	case bytecode.BothRangeCheck:
		m.PC++
		if !instr.InRange(v.Index()) {
			return sigToggle, Deopt, nil
		}
		return sigContinue, Opt, nil

	case bytecode.MulStart:
		v.Move(int(instr.Delta))
		return m.optMul(v, instr)

	case bytecode.SingleMoveAdd, bytecode.SingleMoveSub:
		v.Move(int(instr.Delta))
		src := v.Get()
		if src == 0 {
			m.PC++
			return sigContinue, Opt, nil
		}
		v.Set(0)
		dest := wrapIdx(int(v.Index()), int(instr.Off))
		if instr.Op == bytecode.SingleMoveAdd {
			v.AddAt(dest, src)
		} else {
			v.SubAt(dest, src)
		}
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.DoubleMoveAddAdd, bytecode.DoubleMoveAddSub, bytecode.DoubleMoveSubAdd, bytecode.DoubleMoveSubSub:
		v.Move(int(instr.Delta))
		src := v.Get()
		if src == 0 {
			m.PC++
			return sigContinue, Opt, nil
		}
		v.Set(0)
		d1 := wrapIdx(int(v.Index()), int(instr.Off))
		d2 := wrapIdx(int(v.Index()), int(instr.Off2))
		if instr.Op == bytecode.DoubleMoveAddAdd || instr.Op == bytecode.DoubleMoveAddSub {
			v.AddAt(d1, src)
		} else {
			v.SubAt(d1, src)
		}
		if instr.Op == bytecode.DoubleMoveAddAdd || instr.Op == bytecode.DoubleMoveSubAdd {
			v.AddAt(d2, src)
		} else {
			v.SubAt(d2, src)
		}
		m.PC++
		return sigContinue, Opt, nil

	case bytecode.MoveStart:
		v.Move(int(instr.Delta))
		return m.optMoveExpand(v, instr)

	case bytecode.JmpIfZero:
		v.Move(int(instr.Delta))
		if v.Get() == 0 {
			m.PC = int(instr.Addr)
		} else {
			m.PC++
		}
		return sigContinue, Opt, nil

	case bytecode.JmpIfNotZero:
		v.Move(int(instr.Delta))
		if v.Get() != 0 {
			m.PC = int(instr.Addr)
		} else {
			m.PC++
		}
		return sigContinue, Opt, nil

	case bytecode.PositiveRangeCheckJNZ, bytecode.NegativeRangeCheckJNZ, bytecode.BothRangeCheckJNZ:
		return m.optRangeCheckJNZ(v, instr)

	default:
		return 0, 0, errors.OOBGet(m.PC)
	}
}

func (m *Machine) optShift(v *tape.View, instr bytecode.Instr) (signal, Tier, error) {
	v.Move(int(instr.Delta))
	for v.Get() != 0 {
		v.Move(int(instr.Step))
	}

	switch instr.Op {
	case bytecode.ShiftAdd, bytecode.ShiftAddP, bytecode.ShiftAddN:
		v.Add(instr.Imm)
	case bytecode.ShiftSet, bytecode.ShiftSetP, bytecode.ShiftSetN:
		v.Set(instr.Imm)
	}

	m.PC++

	if instr.RangeKind != ranges.None && !instr.InRange(v.Index()) {
		return sigToggle, Deopt, nil
	}
	return sigContinue, Opt, nil
}

func (m *Machine) optMul(v *tape.View, instr bytecode.Instr) (signal, Tier, error) {
	prog := m.Program
	src := v.Get()
	if src == 0 {
		m.PC = int(instr.Addr)
		return sigContinue, Opt, nil
	}
	v.Set(0)
	srcIdx := int(v.Index())
	pc := m.PC + 1
	for pc < len(prog.Code) && prog.Code[pc].Op == bytecode.Mul {
		d := prog.Code[pc]
		dest := wrapIdx(srcIdx, int(d.Off))
		v.AddAt(dest, src*d.Imm)
		pc++
	}
	m.PC = pc
	return sigContinue, Opt, nil
}

func (m *Machine) optMoveExpand(v *tape.View, instr bytecode.Instr) (signal, Tier, error) {
	prog := m.Program
	src := v.Get()
	if src == 0 {
		m.PC = int(instr.Addr)
		return sigContinue, Opt, nil
	}
	v.Set(0)
	srcIdx := int(v.Index())
	pc := m.PC + 1
	for pc < len(prog.Code) && (prog.Code[pc].Op == bytecode.MoveAdd || prog.Code[pc].Op == bytecode.MoveSub) {
		d := prog.Code[pc]
		dest := wrapIdx(srcIdx, int(d.Off))
		if d.Op == bytecode.MoveAdd {
			v.AddAt(dest, src)
		} else {
			v.SubAt(dest, src)
		}
		pc++
	}
	m.PC = pc
	return sigContinue, Opt, nil
}

func (m *Machine) optRangeCheckJNZ(v *tape.View, instr bytecode.Instr) (signal, Tier, error) {
	v.Move(int(instr.Delta))
	nz := v.Get() != 0
	startPC := m.PC - int(instr.Off) - 1
	if nz {
		m.PC = startPC + 1
	} else {
		m.PC++
	}
	if !instr.InRange(v.Index()) {
		return sigToggle, Deopt, nil
	}
	return sigContinue, Opt, nil
}
