// Package bytecode implements the linear, pointer-fused executable form
// lowered from IR: 36 opcodes, encoded as a flat []Instr rather
// than a byte stream, since every variant carries the same small set of
// scalar fields (a pointer delta, an optional immediate, an optional
// address/offset, and an optional range bound) -- the struct-of-fields
// shape the teacher's own Chunk/DebugInfo side-table pairing pointed at,
// generalized to instructions that are themselves the side-table entries.
package bytecode

type Op uint8

const (
	SingleAdd Op = iota
	SingleSet
	In
	Out
	End
	Breakpoint

	// Pair-fused arithmetic.
	AddAdd
	AddSet
	SetAdd
	SetSet

	// Shift, with an optional fused successor and/or attached range bound.
	Shift
	ShiftAdd
	ShiftSet
	ShiftP
	ShiftN
	ShiftAddP
	ShiftAddN
	ShiftSetP
	ShiftSetN

	// Standalone range assertion following an unfused Both-range Shift.
	BothRangeCheck

	// Multiplication expansion.
	MulStart
	Mul

	// Move expansions.
	SingleMoveAdd
	SingleMoveSub
	DoubleMoveAddAdd
	DoubleMoveAddSub
	DoubleMoveSubAdd
	DoubleMoveSubSub
	MoveStart
	MoveAdd
	MoveSub

	// Loop control.
	JmpIfZero
	JmpIfNotZero
	PositiveRangeCheckJNZ
	NegativeRangeCheckJNZ
	BothRangeCheckJNZ
)

func (o Op) String() string {
	names := [...]string{
		"SingleAdd", "SingleSet", "In", "Out", "End", "Breakpoint",
		"AddAdd", "AddSet", "SetAdd", "SetSet",
		"Shift", "ShiftAdd", "ShiftSet", "ShiftP", "ShiftN",
		"ShiftAddP", "ShiftAddN", "ShiftSetP", "ShiftSetN",
		"BothRangeCheck",
		"MulStart", "Mul",
		"SingleMoveAdd", "SingleMoveSub",
		"DoubleMoveAddAdd", "DoubleMoveAddSub", "DoubleMoveSubAdd", "DoubleMoveSubSub",
		"MoveStart", "MoveAdd", "MoveSub",
		"JmpIfZero", "JmpIfNotZero",
		"PositiveRangeCheckJNZ", "NegativeRangeCheckJNZ", "BothRangeCheckJNZ",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "?"
}
