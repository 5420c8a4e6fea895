package exec

import (
	"context"
	"fmt"

	"symex/ga"
	"symex/state"
)

// StandardIntrinsics builds the required runtime hook library (§4.G):
// symbolic, assume, suppress_path, is_symbolic. The analyzed program invokes
// these as ordinary calls; the executor recognizes their entry symbol and
// short-circuits decoding to run the hook body directly, then returns to the
// caller exactly as if the call had fallen straight through.
func StandardIntrinsics() map[string]Intrinsic {
	return map[string]Intrinsic{
		"symbolic":      symbolicHook,
		"assume":        assumeHook,
		"suppress_path": suppressPathHook,
		"is_symbolic":   isSymbolicHook,
	}
}

// symbolicHook marks args[0]..args[0]+args[1] as fresh symbolic input bytes
// (§4.E.6 "symbolic(ptr, size) marks the memory region as fresh symbolic
// input"). Both arguments must be concrete: a symbolic pointer or length
// would make "which bytes became symbolic" itself a branch-worthy fact this
// engine doesn't model, so it is reported as an Error path instead.
func symbolicHook(ctx context.Context, e *Engine, s *state.State, args []ga.Value) ([]*state.State, error) {
	if len(args) < 2 || args[0].IsSymbolic() || args[1].IsSymbolic() {
		s.Terminate(state.ErrorStatus, fmt.Errorf("exec: symbolic() requires concrete ptr and size"))
		return []*state.State{s}, nil
	}
	ptr := uint32(args[0].Conc)
	size := args[1].Conc
	for i := uint64(0); i < size; i++ {
		addr := ga.Concrete(ga.Width32, uint64(ptr)+i)
		name := fmt.Sprintf("symbolic_%#x_%d", ptr+uint32(i), len(s.Inputs))
		expr := s.Gateway.Var(name, 8)
		s.Inputs[name] = expr
		s.Mem.WriteByte(addr, ga.Symbolic(ga.Width8, expr))
	}
	return e.returnToCaller(ctx, s)
}

// assumeHook pushes args[0] != 0 onto the path condition and drops the path
// if that makes it infeasible (§4.E.6 "assume(cond) pushes a constraint and
// drops the path if infeasible"). A concrete-false argument is the same
// fact stated directly rather than discovered by the solver, so it takes
// the identical TerminatedAssumptionViolated exit.
func assumeHook(ctx context.Context, e *Engine, s *state.State, args []ga.Value) ([]*state.State, error) {
	if len(args) < 1 {
		s.Terminate(state.ErrorStatus, fmt.Errorf("exec: assume() requires a condition argument"))
		return []*state.State{s}, nil
	}
	g := s.Gateway
	cond := args[0]
	if !cond.IsSymbolic() {
		if cond.Conc == 0 {
			s.Terminate(state.TerminatedAssumptionViolated, nil)
			return []*state.State{s}, nil
		}
		return e.returnToCaller(ctx, s)
	}
	nz := g.BoolNot(g.Eq(cond.Sym, g.Literal(uint(cond.Width), 0)))
	s.PC.Push(nz)
	ok, err := s.Feasible(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.Terminate(state.TerminatedAssumptionViolated, nil)
		return []*state.State{s}, nil
	}
	return e.returnToCaller(ctx, s)
}

// suppressPathHook terminates the path without contributing to WCET
// (§4.E.6 "suppress_path() terminates the state without contributing to
// WCET"): TerminatedSuppressed is deliberately distinct from
// TerminatedNormal so the WCET driver's max-cycles comparison skips it.
func suppressPathHook(ctx context.Context, e *Engine, s *state.State, args []ga.Value) ([]*state.State, error) {
	s.Terminate(state.TerminatedSuppressed, nil)
	return []*state.State{s}, nil
}

// isSymbolicHook writes 1 into e.RetReg if args[0] is symbolic, 0 otherwise,
// then returns to the caller (§4.G "is_symbolic (returns concrete 0/1)").
func isSymbolicHook(ctx context.Context, e *Engine, s *state.State, args []ga.Value) ([]*state.State, error) {
	result := uint64(0)
	if len(args) >= 1 && args[0].IsSymbolic() {
		result = 1
	}
	if e.RetReg != "" {
		s.Regs.Write(e.RetReg, ga.Concrete(ga.Width32, result))
	}
	return e.returnToCaller(ctx, s)
}

// returnToCaller resumes execution at the address the preceding call
// instruction stored in e.LinkReg, mirroring execReturn but without
// charging any cycle cost — the hook itself is a modeling fiction, not a
// native instruction the decoder ever costed.
func (e *Engine) returnToCaller(ctx context.Context, s *state.State) ([]*state.State, error) {
	if e.LinkReg == "" {
		s.Terminate(state.ErrorStatus, fmt.Errorf("exec: intrinsic return requires Engine.LinkReg"))
		return []*state.State{s}, nil
	}
	addr := s.Regs.Read(e.LinkReg)
	if addr.IsSymbolic() {
		return e.resolveFanout(ctx, s, addr, func(c *state.State, a uint32) ([]*state.State, error) {
			return e.finishReturn(c, a)
		})
	}
	return e.finishReturn(s, uint32(addr.Conc))
}
