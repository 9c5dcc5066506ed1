package diag

import (
	"io"

	"github.com/kr/pretty"

	"loopvm/internal/bytecode"
	"loopvm/internal/ir"
)

// DumpIRRaw renders the IR op slice with kr/pretty's unfiltered Go-struct
// inspection, for --debug-raw. Unlike DumpIR this carries no loop-depth
// formatting — it is meant for interpreter development, not end-user output.
func DumpIRRaw(w io.Writer, ops []ir.Op) {
	pretty.Fprintf(w, "%# v\n", ops)
}

// DumpBytecodeRaw renders a Program the same way.
func DumpBytecodeRaw(w io.Writer, prog *bytecode.Program) {
	pretty.Fprintf(w, "%# v\n", prog)
}
