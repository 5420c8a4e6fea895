// Package wcet implements the exploration driver (§4.F): it owns the
// frontier of live path states, repeatedly asks the executor to advance one
// state at a time, and reduces the resulting terminal states down to a
// worst-case cycle count, a witness input assignment, and a deduplicated
// summary list.
package wcet

import (
	"time"

	"github.com/sirupsen/logrus"

	"symex/smt"
)

// Request is the programmatic entry point's input (§6 "Invocation
// surface"). ELFPath/Entry are resolved by Analyze itself; callers that
// already have a decoded Image and built Engine use AnalyzeEngine directly
// (the CLI goes through Analyze; the tests use AnalyzeEngine so they need
// not hand-encode a real ELF file).
type Request struct {
	ELFPath string
	Arch    string // "armv6m", "armv7m", "armv7em", "rv32i"
	Entry   string
	Solver  smt.Backend

	MaxPaths      int
	MaxSteps      int
	SolverTimeout time.Duration
	FanoutLimit   int

	// InitialBindings fixes named symbolic inputs (the ABI argument names
	// this Request's architecture profile assigns, e.g. "arg0") to a
	// concrete value instead of leaving them free.
	InitialBindings map[string]uint64

	// Parallel enables the bounded worker-pool exploration mode (§5).
	Parallel bool

	// Log is the "wcet" component sub-logger (§4.K). Nil disables
	// logging. Info level reports each path's termination and the final
	// WCET; debug/trace are the executor's concern (see Engine.Log).
	Log *logrus.Entry
}

// TerminalSummary is one deduplicated terminal outcome (§4.F "Terminal
// summaries are accumulated in a deduplicated set ... keyed on
// status+cycles+witness-digest"). It intentionally satisfies Go's
// comparable constraint so a plain set (no hashing callback) can dedupe it.
type TerminalSummary struct {
	Status        string
	Cycles        uint64
	WitnessDigest string
}

// Witness is the concrete assignment to every originally-symbolic input a
// reported path's ancestry introduced, keyed by the stable name
// state.State.Inputs recorded it under.
type Witness map[string]uint64

// Result is Analyze's output (§6).
type Result struct {
	WCETCycles  uint64
	Witness     Witness
	PanicFound  bool
	PanicWitness Witness
	Summaries   []TerminalSummary
	Incomplete  bool
}
