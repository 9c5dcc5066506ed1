// Package config collects the CLI's resolved flags into a single struct.
// Only cmd/loopvm uses it: it hands Flush and StepLimit to vm.NewMachine as
// separate arguments and reads the dump and quiet settings itself;
// internal/vm does not import this package.
package config

// Run holds the resolved settings for one CLI run.
type Run struct {
	Flush     bool
	StepLimit uint64
	IRDump    bool
	OutDump   bool
	DebugRaw  bool
	Quiet     bool
}
