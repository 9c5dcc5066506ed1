package vm

import (
	"loopvm/internal/bytecode"
	"loopvm/internal/errors"
	"loopvm/internal/ranges"
	"loopvm/internal/tape"
)

func wrapIdx(base, off int) uint {
	idx := (base + off) % tape.Len
	if idx < 0 {
		idx += tape.Len
	}
	return uint(idx)
}

// stepDeopt executes exactly one bytecode instruction with checked tape
// access. Ordinary ops advance the pointer by Delta, perform their effect,
// and fall through to PC+1. Range-bearing ops perform their effect first,
// then test the *current* pointer against the attached range; if the
// pointer now satisfies the guarantee, the step signals a tier switch to
// Opt so later execution can elide bounds checks (spec §4.5).
func (m *Machine) stepDeopt() (signal, Tier, error) {
	prog := m.Program
	if m.PC >= len(prog.Code) {
		return sigEnd, Deopt, nil
	}
	instr := prog.Code[m.PC]
	prog.Hit(m.PC)

	switch instr.Op {
	case bytecode.End:
		return sigEnd, Deopt, nil

	case bytecode.SingleAdd:
		m.Tape.Move(int(instr.Delta))
		if err := m.Tape.Add(m.Tape.Ptr(), instr.Imm); err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.SingleSet:
		m.Tape.Move(int(instr.Delta))
		if err := m.Tape.Set(m.Tape.Ptr(), instr.Imm); err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.AddAdd, bytecode.AddSet, bytecode.SetAdd, bytecode.SetSet:
		m.Tape.Move(int(instr.Delta))
		ptr := m.Tape.Ptr()
		first := instr.Op == bytecode.AddAdd || instr.Op == bytecode.AddSet
		if first {
			if err := m.Tape.Add(ptr, instr.Imm); err != nil {
				return 0, 0, err
			}
		} else {
			if err := m.Tape.Set(ptr, instr.Imm); err != nil {
				return 0, 0, err
			}
		}
		second := instr.Op == bytecode.AddAdd || instr.Op == bytecode.SetAdd
		if second {
			if err := m.Tape.Add(ptr, instr.Imm2); err != nil {
				return 0, 0, err
			}
		} else {
			if err := m.Tape.Set(ptr, instr.Imm2); err != nil {
				return 0, 0, err
			}
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.In:
		m.Tape.Move(int(instr.Delta))
		b, err := m.readByte()
		if err != nil {
			return 0, 0, err
		}
		if err := m.Tape.Set(m.Tape.Ptr(), b); err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.Out:
		m.Tape.Move(int(instr.Delta))
		v, err := m.Tape.Get(m.Tape.Ptr())
		if err != nil {
			return 0, 0, err
		}
		if err := m.writeByte(v); err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.Breakpoint:
		m.Tape.Move(int(instr.Delta))
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.Shift, bytecode.ShiftAdd, bytecode.ShiftSet,
		bytecode.ShiftP, bytecode.ShiftN, bytecode.ShiftAddP, bytecode.ShiftAddN,
		bytecode.ShiftSetP, bytecode.ShiftSetN:
		return m.deoptShift(instr)

	case bytecode.BothRangeCheck:
		if instr.InRange(m.Tape.Ptr()) {
			m.PC++
			return sigToggle, Opt, nil
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.MulStart:
		m.Tape.Move(int(instr.Delta))
		return m.deoptMul(instr)

	case bytecode.SingleMoveAdd, bytecode.SingleMoveSub:
		m.Tape.Move(int(instr.Delta))
		ptr := m.Tape.Ptr()
		v, err := m.Tape.Get(ptr)
		if err != nil {
			return 0, 0, err
		}
		if v == 0 {
			m.PC++
			return sigContinue, Deopt, nil
		}
		if err := m.Tape.Set(ptr, 0); err != nil {
			return 0, 0, err
		}
		dest := wrapIdx(int(ptr), int(instr.Off))
		if instr.Op == bytecode.SingleMoveAdd {
			err = m.Tape.Add(dest, v)
		} else {
			err = m.Tape.Sub(dest, v)
		}
		if err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.DoubleMoveAddAdd, bytecode.DoubleMoveAddSub, bytecode.DoubleMoveSubAdd, bytecode.DoubleMoveSubSub:
		m.Tape.Move(int(instr.Delta))
		ptr := m.Tape.Ptr()
		v, err := m.Tape.Get(ptr)
		if err != nil {
			return 0, 0, err
		}
		if v == 0 {
			m.PC++
			return sigContinue, Deopt, nil
		}
		if err := m.Tape.Set(ptr, 0); err != nil {
			return 0, 0, err
		}
		d1 := wrapIdx(int(ptr), int(instr.Off))
		d2 := wrapIdx(int(ptr), int(instr.Off2))
		if instr.Op == bytecode.DoubleMoveAddAdd || instr.Op == bytecode.DoubleMoveAddSub {
			err = m.Tape.Add(d1, v)
		} else {
			err = m.Tape.Sub(d1, v)
		}
		if err != nil {
			return 0, 0, err
		}
		if instr.Op == bytecode.DoubleMoveAddAdd || instr.Op == bytecode.DoubleMoveSubAdd {
			err = m.Tape.Add(d2, v)
		} else {
			err = m.Tape.Sub(d2, v)
		}
		if err != nil {
			return 0, 0, err
		}
		m.PC++
		return sigContinue, Deopt, nil

	case bytecode.MoveStart:
		m.Tape.Move(int(instr.Delta))
		return m.deoptMoveExpand(instr)

	case bytecode.JmpIfZero:
		m.Tape.Move(int(instr.Delta))
		v, err := m.Tape.Get(m.Tape.Ptr())
		if err != nil {
			return 0, 0, err
		}
		if v == 0 {
			m.PC = int(instr.Addr)
		} else {
			m.PC++
		}
		return sigContinue, Deopt, nil

	case bytecode.JmpIfNotZero:
		m.Tape.Move(int(instr.Delta))
		v, err := m.Tape.Get(m.Tape.Ptr())
		if err != nil {
			return 0, 0, err
		}
		if v != 0 {
			m.PC = int(instr.Addr)
		} else {
			m.PC++
		}
		return sigContinue, Deopt, nil

	case bytecode.PositiveRangeCheckJNZ, bytecode.NegativeRangeCheckJNZ, bytecode.BothRangeCheckJNZ:
		return m.deoptRangeCheckJNZ(instr)

	default:
		return 0, 0, errors.OOBGet(m.PC)
	}
}

func (m *Machine) deoptShift(instr bytecode.Instr) (signal, Tier, error) {
	m.Tape.Move(int(instr.Delta))
	for {
		v, err := m.Tape.Get(m.Tape.Ptr())
		if err != nil {
			return 0, 0, err
		}
		if v == 0 {
			break
		}
		m.Tape.Move(int(instr.Step))
	}

	switch instr.Op {
	case bytecode.ShiftAdd, bytecode.ShiftAddP, bytecode.ShiftAddN:
		if err := m.Tape.Add(m.Tape.Ptr(), instr.Imm); err != nil {
			return 0, 0, err
		}
	case bytecode.ShiftSet, bytecode.ShiftSetP, bytecode.ShiftSetN:
		if err := m.Tape.Set(m.Tape.Ptr(), instr.Imm); err != nil {
			return 0, 0, err
		}
	}

	m.PC++

	if instr.RangeKind != ranges.None && instr.InRange(m.Tape.Ptr()) {
		return sigToggle, Opt, nil
	}
	return sigContinue, Deopt, nil
}

func (m *Machine) deoptMul(instr bytecode.Instr) (signal, Tier, error) {
	prog := m.Program
	srcPtr := m.Tape.Ptr()
	src, err := m.Tape.Get(srcPtr)
	if err != nil {
		return 0, 0, err
	}
	if src == 0 {
		// mul_val is zero: no dest is touched, skip straight past the
		// expansion (spec §4.5 "no side effects").
		m.PC = int(instr.Addr)
		return sigContinue, Deopt, nil
	}
	if err := m.Tape.Set(srcPtr, 0); err != nil {
		return 0, 0, err
	}
	pc := m.PC + 1
	for pc < len(prog.Code) && prog.Code[pc].Op == bytecode.Mul {
		d := prog.Code[pc]
		dest := wrapIdx(int(srcPtr), int(d.Off))
		if err := m.Tape.Add(dest, src*d.Imm); err != nil {
			return 0, 0, err
		}
		pc++
	}
	m.PC = pc
	return sigContinue, Deopt, nil
}

func (m *Machine) deoptMoveExpand(instr bytecode.Instr) (signal, Tier, error) {
	prog := m.Program
	srcPtr := m.Tape.Ptr()
	src, err := m.Tape.Get(srcPtr)
	if err != nil {
		return 0, 0, err
	}
	if src == 0 {
		m.PC = int(instr.Addr)
		return sigContinue, Deopt, nil
	}
	if err := m.Tape.Set(srcPtr, 0); err != nil {
		return 0, 0, err
	}
	pc := m.PC + 1
	for pc < len(prog.Code) && (prog.Code[pc].Op == bytecode.MoveAdd || prog.Code[pc].Op == bytecode.MoveSub) {
		d := prog.Code[pc]
		dest := wrapIdx(int(srcPtr), int(d.Off))
		if d.Op == bytecode.MoveAdd {
			err = m.Tape.Add(dest, src)
		} else {
			err = m.Tape.Sub(dest, src)
		}
		if err != nil {
			return 0, 0, err
		}
		pc++
	}
	m.PC = pc
	return sigContinue, Deopt, nil
}

func (m *Machine) deoptRangeCheckJNZ(instr bytecode.Instr) (signal, Tier, error) {
	m.Tape.Move(int(instr.Delta))
	v, err := m.Tape.Get(m.Tape.Ptr())
	if err != nil {
		return 0, 0, err
	}
	startPC := m.PC - int(instr.Off) - 1
	if v != 0 {
		m.PC = startPC + 1
	} else {
		m.PC++
	}
	if instr.InRange(m.Tape.Ptr()) {
		return sigToggle, Opt, nil
	}
	return sigContinue, Deopt, nil
}
