// Package ir defines the intermediate representation produced by the
// single-pass parser: a flat sequence of pointer-annotated operations with
// the loop-idiom peephole rules already folded in.
package ir

// Kind tags the IR operation variant. Lowering (internal/bytecode) and
// range analysis (internal/ranges) both dispatch on this the way the
// teacher's compiler dispatches on parser.Expr/Stmt node types, except here
// the variant is a flat enum rather than an interface hierarchy: every IR
// op is the same struct shape, just with different fields populated.
type Kind uint8

const (
	Add Kind = iota
	Set
	Shift
	Mul            // MulAndSetZero
	Moves          // MovesAndSetZero (all factors +-1)
	MoveAdd        // single-dest +1 specialization
	MoveSub        // single-dest -1 specialization
	In
	Out
	LoopStart
	LoopEnd
	LoopEndOffset
	Breakpoint
	End
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "Add"
	case Set:
		return "Set"
	case Shift:
		return "Shift"
	case Mul:
		return "MulAndSetZero"
	case Moves:
		return "MovesAndSetZero"
	case MoveAdd:
		return "MoveAdd"
	case MoveSub:
		return "MoveSub"
	case In:
		return "In"
	case Out:
		return "Out"
	case LoopStart:
		return "LoopStart"
	case LoopEnd:
		return "LoopEnd"
	case LoopEndOffset:
		return "LoopEndOffset"
	case Breakpoint:
		return "Breakpoint"
	case End:
		return "End"
	default:
		return "?"
	}
}

// MulDest is one destination of a MulAndSetZero op: cell[Offset] +=
// cell[pointer]*Factor (mod 256).
type MulDest struct {
	Offset int
	Factor byte
}

// MoveDest is one destination of a MovesAndSetZero op, the +-1 specialization
// of MulDest.
type MoveDest struct {
	Offset   int
	Positive bool
}

// Op is the IR's tagged-variant instruction: a pointer plus an opcode. Not
// every field is meaningful for every Kind; the field comments below say
// which variants use each field.
type Op struct {
	Kind Kind
	Ptr  int // pointer at which this op operates (running delta from program start)

	Val byte // Add/Set operand

	Step int // Shift: non-zero step applied while cell != 0

	MulDests  []MulDest  // Mul
	MoveDests []MoveDest // Moves

	Dest int // MoveAdd/MoveSub: single destination offset

	Target int // LoopStart: matching end index; LoopEnd/LoopEndOffset: matching start index
	Offset int // LoopEndOffset: pointer delta from start to end
}
