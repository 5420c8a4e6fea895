package state

import (
	"context"

	"symex/ga"
	"symex/smt"
)

// Status is the path-state status lattice from §3: Running is the only
// non-absorbing member; every Terminated/Error variant is a terminal.
type Status struct {
	Kind TerminalKind
	// Err carries detail for Kind == Error; nil otherwise.
	Err error
}

// TerminalKind enumerates the Running/Terminated(*)/Error(*) variants.
type TerminalKind uint8

const (
	Running TerminalKind = iota
	TerminatedNormal
	TerminatedPanic
	TerminatedAssumptionViolated
	TerminatedSuppressed
	ErrorStatus
)

// IsTerminal reports whether further stepping is meaningless.
func (s Status) IsTerminal() bool { return s.Kind != Running }

// PathCondition is the ordered conjunction of boolean constraints
// accumulated along a state's fork history (§3). It is represented as the
// list of conjuncts rather than a single pre-ANDed expression; each
// feasibility query folds them into a fresh BoolAnd tree.
type PathCondition struct {
	conjuncts []smt.Expr
}

// Push appends cond to the path condition.
func (pc *PathCondition) Push(cond smt.Expr) {
	pc.conjuncts = append(pc.conjuncts, cond)
}

// Conjuncts returns the accumulated constraints in accumulation order.
func (pc *PathCondition) Conjuncts() []smt.Expr {
	return pc.conjuncts
}

// Clone returns an independent copy: the conjuncts are copied into a fresh
// backing array, so a later Push on either side never affects the other.
func (pc *PathCondition) Clone() *PathCondition {
	out := make([]smt.Expr, len(pc.conjuncts))
	copy(out, pc.conjuncts)
	return &PathCondition{conjuncts: out}
}

// State is the path-state tuple of §3: (registers, memory, path_condition,
// cycles, call_depth, status). It is exclusively owned by whichever
// frontier entry holds it; Fork produces two states sharing no mutable
// structure (copy-on-write of memory and the path condition's backing
// array is permitted, per §3, since neither side ever mutates a shared
// slice/array in place — only appends, which reallocate under the Go
// slice-growth contract when capacity is exceeded).
type State struct {
	Gateway    smt.Gateway
	Regs       *Registers
	Mem        *Memory
	PC         *PathCondition
	Cycles     uint64
	CallDepth  int
	St         Status
	// Inputs records the smt.Expr handle of every originally-symbolic
	// input this state's ancestry introduced, keyed by a stable name, so
	// the WCET driver can snapshot a witness assignment at termination
	// (§4.F) without needing to rediscover free variables from scratch.
	Inputs map[string]smt.Expr
}

// NewState builds a fresh Running state with empty registers/memory/path
// condition and zero cycles/call-depth, rooted at gateway g.
func NewState(g smt.Gateway) *State {
	return &State{
		Gateway: g,
		Regs:    NewRegisters(),
		Mem:     NewMemory(g, nil),
		PC:      &PathCondition{},
		St:      Status{Kind: Running},
		Inputs:  make(map[string]smt.Expr),
	}
}

// AddCycles advances the monotonic cycle counter (§8 "Cycle monotonicity").
// Decoders/executor never subtract from Cycles; this method has no
// corresponding "remove" counterpart by design.
func (s *State) AddCycles(n uint32) {
	s.Cycles += uint64(n)
}

// Feasible reports whether s's path condition is currently satisfiable,
// consulting the gateway fresh (no caching: the path condition only grows
// monotonically within a state's lifetime, so a prior Feasible result
// never needs invalidating, but a fresh check after every Push is what
// §8's "Path-condition soundness" property requires).
func (s *State) Feasible(ctx context.Context) (bool, error) {
	if len(s.PC.conjuncts) == 0 {
		return true, nil
	}
	cond := s.PC.conjuncts[0]
	for _, c := range s.PC.conjuncts[1:] {
		cond = s.Gateway.BoolAnd(cond, c)
	}
	sat, err := s.Gateway.CheckSat(ctx, cond)
	if err != nil {
		return false, err
	}
	switch sat {
	case smt.Satisfiable:
		return true, nil
	case smt.Unsat:
		return false, nil
	default:
		return false, smt.SolverUnknown{Query: "Feasible"}
	}
}

// Fork splits s into two children under cond: one with cond in its path
// condition, the other with ¬cond (§4.C). Each child is independently
// feasibility-checked before being returned to the caller; an infeasible
// child comes back with ok=false and should be dropped rather than
// enqueued (§8 "Fork completeness").
func (s *State) Fork(ctx context.Context, cond smt.Expr) (tChild, fChild *State, tOK, fOK bool, err error) {
	t := s.clone()
	t.PC.Push(cond)
	tOK, err = t.Feasible(ctx)
	if err != nil {
		return nil, nil, false, false, err
	}

	f := s.clone()
	f.PC.Push(s.Gateway.BoolNot(cond))
	fOK, err = f.Feasible(ctx)
	if err != nil {
		return nil, nil, false, false, err
	}

	return t, f, tOK, fOK, nil
}

// Assume clones s, adds cond to the clone's path condition, and reports
// whether the clone remains feasible. Used for N-way fan-out (symbolic
// jump-target or load-address resolution, §4.E) where the exploration
// isn't a simple boolean split: each alias is its own Assume against the
// "address equals this concrete value" equality.
func (s *State) Assume(ctx context.Context, cond smt.Expr) (child *State, ok bool, err error) {
	c := s.clone()
	c.PC.Push(cond)
	ok, err = c.Feasible(ctx)
	if err != nil {
		return nil, false, err
	}
	return c, ok, nil
}

// Clone exposes the independent-copy operation Fork/Assume use internally,
// for callers (the executor's intrinsic handlers) that need a fresh owner
// of the same logical state without also pushing a constraint.
func (s *State) Clone() *State { return s.clone() }

// clone produces an independent copy of s sharing no mutable structure
// (registers and memory's concrete overlay are deep-copied; memory's
// symbolic array head and path-condition conjuncts are shared immutable
// structure per §9).
func (s *State) clone() *State {
	inputs := make(map[string]smt.Expr, len(s.Inputs))
	for k, v := range s.Inputs {
		inputs[k] = v
	}
	return &State{
		Gateway:   s.Gateway,
		Regs:      s.Regs.Clone(),
		Mem:       s.Mem.Clone(),
		PC:        s.PC.Clone(),
		Cycles:    s.Cycles,
		CallDepth: s.CallDepth,
		St:        s.St,
		Inputs:    inputs,
	}
}

// Terminate moves s into a terminal status. Calling Terminate on an
// already-terminal state is a bug (terminals are absorbing per §4.E) and
// panics rather than silently overwriting the first terminal reason.
func (s *State) Terminate(kind TerminalKind, err error) {
	if s.St.IsTerminal() {
		panic("state: Terminate called on an already-terminal state")
	}
	s.St = Status{Kind: kind, Err: err}
}

// FreshSymbolicReg creates a new symbolic value for register r, recording
// it under name in Inputs so the witness snapshotter can find it later,
// and writes it into Regs.
func (s *State) FreshSymbolicReg(r ga.Reg, name string, width ga.Width) ga.Value {
	expr := s.Gateway.Var(name, uint(width))
	s.Inputs[name] = expr
	v := ga.Symbolic(width, expr)
	s.Regs.Write(r, v)
	return v
}
