// Package exec implements the symbolic executor (§4.E): single-stepping a
// path state by fetching the concrete bytes at PC, decoding one GA block,
// interpreting its operations, and producing the live successor states
// (zero, one, or many, depending on forking).
package exec

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"symex/decode/decoder"
	"symex/ga"
	"symex/state"
)

// Symbols is the subset of ELF symbol-table information the executor
// needs: a reverse map from address to symbol name, used to recognize
// runtime-intrinsic hooks and the panic handler by crossing into their
// entry address (§4.G).
type Symbols struct {
	ByAddr map[uint32]string
}

// NameOf returns the symbol name at addr, if any.
func (s Symbols) NameOf(addr uint32) (string, bool) {
	name, ok := s.ByAddr[addr]
	return name, ok
}

// Intrinsic implements one runtime hook's semantics (§4.G). args holds the
// hook's arguments already read from the calling convention's argument
// registers, in order. An intrinsic returns the live successor states
// directly since some hooks (assume, suppress_path) alter control flow by
// dropping or terminating the path rather than falling through.
type Intrinsic func(ctx context.Context, e *Engine, s *state.State, args []ga.Value) ([]*state.State, error)

// Engine is the per-architecture executor: a decoder, the symbol table for
// intrinsic/panic recognition, the calling convention's argument
// registers, and the configured exploration bounds that apply at
// single-step granularity (§5: "bounded by a configurable fan-out").
type Engine struct {
	Decoder     decoder.Decoder
	Image       decoder.Image
	Symbols     Symbols
	PanicSymbol string
	Intrinsics  map[string]Intrinsic
	ArgRegs     []ga.Reg

	// LinkReg is the register a call instruction leaves the return address
	// in on this architecture (ga.RegLR for ARM; the RV32I decoder always
	// targets "x1"/"ra" for real calls even though JAL/JALR's Dst can in
	// principle name any register). Intrinsic hooks return to it directly,
	// modeling the hook as a function call that completes in zero additional
	// instructions.
	LinkReg ga.Reg
	// RetReg is the register a hook with a scalar return value (is_symbolic)
	// writes its result into (r0 for ARM, x10/"a0" for RV32I).
	RetReg ga.Reg

	// FanoutLimit bounds how many distinct concrete addresses/targets a
	// single symbolic PC, indirect branch target, or memory access is
	// resolved to: at most FanoutLimit solver solutions are explored (a
	// limit of zero or less explores one). Further feasible values are not
	// explored, and no successor state is produced for them.
	FanoutLimit int

	// Log is the "exec" component sub-logger (§4.K). Nil is valid and
	// disables logging entirely, so tests that build an Engine literal
	// don't need to thread one through.
	Log *logrus.Entry
}

func (e *Engine) trace(pc uint32, op ga.Op) {
	if e.Log == nil {
		return
	}
	e.Log.WithField("pc", fmt.Sprintf("%#x", pc)).Tracef("exec op kind=%d", op.Kind)
}

func (e *Engine) debugFork(cond string, tOK, fOK bool) {
	if e.Log == nil {
		return
	}
	e.Log.WithFields(logrus.Fields{"cond": cond, "true_feasible": tOK, "false_feasible": fOK}).Debug("fork")
}

func (e *Engine) debugTerminate(s *state.State) {
	if e.Log == nil {
		return
	}
	e.Log.WithFields(logrus.Fields{"kind": s.St.Kind, "cycles": s.Cycles}).Debug("terminate")
}

// Step advances s by exactly one native instruction (or, when s's PC is
// symbolic, resolves it and returns the resulting successor states without
// having executed anything yet — the frontier will Step each of those
// again). s must be Running; Step on a terminal state is a caller bug.
func (e *Engine) Step(ctx context.Context, s *state.State) ([]*state.State, error) {
	if s.St.IsTerminal() {
		return nil, fmt.Errorf("exec: Step called on terminal state (status kind %d)", s.St.Kind)
	}

	pcVal := s.Regs.Read(ga.RegPC)
	if pcVal.IsSymbolic() {
		return e.resolveFanout(ctx, s, pcVal, func(c *state.State, addr uint32) ([]*state.State, error) {
			c.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(addr)))
			return []*state.State{c}, nil
		})
	}
	pc := uint32(pcVal.Conc)

	if name, ok := e.Symbols.NameOf(pc); ok {
		if e.PanicSymbol != "" && name == e.PanicSymbol {
			s.Terminate(state.TerminatedPanic, nil)
			e.debugTerminate(s)
			return []*state.State{s}, nil
		}
		if hook, ok := e.Intrinsics[name]; ok {
			args := make([]ga.Value, len(e.ArgRegs))
			for i, r := range e.ArgRegs {
				if s.Regs.Has(r) {
					args[i] = s.Regs.Read(r)
				}
			}
			return hook(ctx, e, s, args)
		}
	}

	block, err := e.Decoder.Decode(e.Image, pc)
	if err != nil {
		s.Terminate(state.ErrorStatus, err)
		return []*state.State{s}, nil
	}
	fallthroughPC := pc + uint32(block.Len)
	return e.execOps(ctx, s, block.Ops, 0, block.Cost, fallthroughPC)
}

// execOps applies ops[i:] to s. Non-control-flow ops mutate s in place and
// the loop continues; a control-flow op (branch/call/return/indirect/halt)
// charges the block's cost and produces the terminal set of successor
// states for this Step call. Decoders in this repository always place
// exactly one control-flow op last in a block (load/store/ALU prefixes
// only), so reaching the end of ops without having hit one means this was
// a plain straight-line instruction: charge its uniform cost and fall
// through to the next PC.
func (e *Engine) execOps(ctx context.Context, s *state.State, ops []ga.Op, i int, cost ga.CycleCost, fallthroughPC uint32) ([]*state.State, error) {
	g := s.Gateway
	var pc uint32
	if e.Log != nil {
		if v := s.Regs.Read(ga.RegPC); !v.IsSymbolic() {
			pc = uint32(v.Conc)
		}
	}
	for ; i < len(ops); i++ {
		op := ops[i]
		e.trace(pc, op)
		switch op.Kind {
		case ga.OpKindAlu:
			if isDivide(op.Alu) {
				return e.execDivide(ctx, s, ops, i, op, cost, fallthroughPC)
			}
			a := s.Regs.Read(op.Src1)
			b := rhsOf(s, op)
			var carry ga.Value
			if op.Alu == ga.OpAddC || op.Alu == ga.OpSubC {
				if s.Regs.Has(ga.FlagC) {
					carry = s.Regs.Read(ga.FlagC)
				} else {
					carry = ga.Concrete(ga.Width1, 0)
				}
			}
			result := binValue(g, op.Alu, a, b, op.Width, carry)
			if op.Dst != "__flags_only" {
				s.Regs.Write(op.Dst, result)
			}
			if op.SetFlags {
				n, z, c, v := flagsFor(g, op.Alu, a, b, result, op.Width)
				s.Regs.Write(ga.FlagN, n)
				s.Regs.Write(ga.FlagZ, z)
				if c.Width != 0 {
					s.Regs.Write(ga.FlagC, c)
				}
				if v.Width != 0 {
					s.Regs.Write(ga.FlagV, v)
				}
			}
		case ga.OpKindMove:
			if op.UseImm {
				s.Regs.Write(op.Dst, ga.Concrete(op.Width, op.Imm))
			} else {
				s.Regs.Write(op.Dst, s.Regs.Read(op.Src1))
			}
		case ga.OpKindExtend:
			v := s.Regs.Read(op.Src1)
			var out ga.Value
			var err error
			if op.Alu == ga.OpSub {
				out, err = ga.SignExtend(g, v, op.Width)
			} else {
				out, err = ga.ZeroExtend(g, v, op.Width)
			}
			if err != nil {
				s.Terminate(state.ErrorStatus, err)
				return []*state.State{s}, nil
			}
			s.Regs.Write(op.Dst, out)
		case ga.OpKindTruncate:
			out, err := ga.Truncate(g, s.Regs.Read(op.Src1), op.Width)
			if err != nil {
				s.Terminate(state.ErrorStatus, err)
				return []*state.State{s}, nil
			}
			s.Regs.Write(op.Dst, out)
		case ga.OpKindFlags:
			// No decoder in this repository emits a standalone OpKindFlags;
			// SetFlags on the defining ALU op always carries this. Kept as
			// a no-op rather than removed so a future decoder that does
			// split cost/flags computation isn't blocked on adding it.
		case ga.OpKindLoad:
			handled, res, err := e.execLoad(ctx, s, ops, i, op, cost, fallthroughPC)
			if handled {
				return res, err
			}
		case ga.OpKindStore:
			handled, res, err := e.execStore(ctx, s, ops, i, op, cost, fallthroughPC)
			if handled {
				return res, err
			}
		case ga.OpKindBranch:
			return e.execBranch(ctx, s, op, cost, fallthroughPC)
		case ga.OpKindIndirect:
			return e.execIndirect(ctx, s, op, cost)
		case ga.OpKindCall:
			return e.execCall(ctx, s, op, cost, fallthroughPC)
		case ga.OpKindReturn:
			return e.execReturn(ctx, s, cost)
		case ga.OpKindIntrinsic:
			if hook, ok := e.Intrinsics[op.Intrinsic]; ok {
				return hook(ctx, e, s, nil)
			}
			s.Terminate(state.ErrorStatus, UnknownIntrinsic{Name: op.Intrinsic})
			return []*state.State{s}, nil
		case ga.OpKindHalt:
			s.AddCycles(cost.Charge(false))
			s.Terminate(state.ErrorStatus, fmt.Errorf("exec: halt instruction reached"))
			return []*state.State{s}, nil
		}
	}
	s.AddCycles(cost.Charge(false))
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(fallthroughPC)))
	return []*state.State{s}, nil
}

func isDivide(alu ga.AluOp) bool {
	return alu == ga.OpUDiv || alu == ga.OpSDiv || alu == ga.OpURem || alu == ga.OpSRem
}

func rhsOf(s *state.State, op ga.Op) ga.Value {
	if op.UseImm {
		return ga.Concrete(op.Width, op.Imm)
	}
	return s.Regs.Read(op.Src2)
}

// execDivide implements §4.E's "divisions by zero ... produce Error": a
// concrete zero divisor terminates the state immediately; a symbolic
// divisor forks into a zero branch (terminated as Error, excluded from
// WCET per §3 "contributes ... only when Terminated(Normal)") and a
// nonzero branch that continues executing the remaining ops with the
// division actually performed.
func (e *Engine) execDivide(ctx context.Context, s *state.State, ops []ga.Op, i int, op ga.Op, cost ga.CycleCost, fallthroughPC uint32) ([]*state.State, error) {
	g := s.Gateway
	b := rhsOf(s, op)
	if !b.IsSymbolic() {
		if b.Conc == 0 {
			s.Terminate(state.ErrorStatus, DivideByZero{PC: uint32(s.Regs.Read(ga.RegPC).Conc)})
			return []*state.State{s}, nil
		}
		a := s.Regs.Read(op.Src1)
		result := binValue(g, op.Alu, a, b, op.Width, ga.Value{})
		s.Regs.Write(op.Dst, result)
		return e.execOps(ctx, s, ops, i+1, cost, fallthroughPC)
	}

	zeroCond := g.Eq(b.Sym, g.Literal(uint(op.Width), 0))
	zeroChild, zeroOK, err := s.Assume(ctx, zeroCond)
	if err != nil {
		return nil, err
	}
	nonzeroChild, nonzeroOK, err := s.Assume(ctx, g.BoolNot(zeroCond))
	if err != nil {
		return nil, err
	}

	var out []*state.State
	if zeroOK {
		zeroChild.Terminate(state.ErrorStatus, DivideByZero{PC: uint32(zeroChild.Regs.Read(ga.RegPC).Conc)})
		out = append(out, zeroChild)
	}
	if nonzeroOK {
		a := nonzeroChild.Regs.Read(op.Src1)
		bNonzero := rhsOf(nonzeroChild, op)
		result := binValue(g, op.Alu, a, bNonzero, op.Width, ga.Value{})
		nonzeroChild.Regs.Write(op.Dst, result)
		rest, err := e.execOps(ctx, nonzeroChild, ops, i+1, cost, fallthroughPC)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

// computeAddr evaluates an op's effective address: AddrReg + AddrImm.
func computeAddr(s *state.State, op ga.Op) ga.Value {
	base := s.Regs.Read(op.AddrReg)
	if !base.IsSymbolic() && op.AddrImm == 0 {
		return base
	}
	if !base.IsSymbolic() {
		return ga.Concrete(ga.Width32, uint64(int64(int32(uint32(base.Conc)))+int64(op.AddrImm)))
	}
	g := s.Gateway
	return ga.Symbolic(ga.Width32, g.Add(base.Sym, g.Literal(32, uint64(int32(op.AddrImm)))))
}

func (e *Engine) execLoad(ctx context.Context, s *state.State, ops []ga.Op, i int, op ga.Op, cost ga.CycleCost, fallthroughPC uint32) (handled bool, states []*state.State, err error) {
	addr := computeAddr(s, op)
	if !addr.IsSymbolic() {
		val, err := e.extendLoad(s, op, s.Mem.ReadWidth(addr, op.MemWidth))
		if err != nil {
			s.Terminate(state.ErrorStatus, err)
			return true, []*state.State{s}, nil
		}
		s.Regs.Write(op.Dst, val)
		return false, nil, nil
	}
	values, children, err := e.fanOutAddress(ctx, s, addr)
	if err != nil {
		return true, nil, err
	}
	var out []*state.State
	for idx, c := range children {
		concreteAddr := ga.Concrete(ga.Width32, values[idx])
		val, err := e.extendLoad(c, op, c.Mem.ReadWidth(concreteAddr, op.MemWidth))
		if err != nil {
			c.Terminate(state.ErrorStatus, err)
			out = append(out, c)
			continue
		}
		c.Regs.Write(op.Dst, val)
		rest, err := e.execOps(ctx, c, ops, i+1, cost, fallthroughPC)
		if err != nil {
			return true, nil, err
		}
		out = append(out, rest...)
	}
	return true, out, nil
}

// extendLoad widens a narrower-than-register-width load result to Width32,
// the uniform GP register width across every supported ISA, sign-extending
// when op.SignExtendLoad is set (LDRSB/LDRSH, RV32I LB/LH) and zero-extending
// otherwise (LDRB/LDRH, RV32I LBU/LHU). Width32 loads pass through unchanged.
func (e *Engine) extendLoad(s *state.State, op ga.Op, val ga.Value) (ga.Value, error) {
	if op.MemWidth >= ga.Width32 {
		return val, nil
	}
	if op.SignExtendLoad {
		return ga.SignExtend(s.Gateway, val, ga.Width32)
	}
	return ga.ZeroExtend(s.Gateway, val, ga.Width32)
}

func (e *Engine) execStore(ctx context.Context, s *state.State, ops []ga.Op, i int, op ga.Op, cost ga.CycleCost, fallthroughPC uint32) (handled bool, states []*state.State, err error) {
	addr := computeAddr(s, op)
	val := s.Regs.Read(op.Src1)
	if !addr.IsSymbolic() {
		s.Mem.WriteWidth(addr, val, op.MemWidth)
		return false, nil, nil
	}
	values, children, err := e.fanOutAddress(ctx, s, addr)
	if err != nil {
		return true, nil, err
	}
	var out []*state.State
	for idx, c := range children {
		concreteAddr := ga.Concrete(ga.Width32, values[idx])
		c.Mem.WriteWidth(concreteAddr, val, op.MemWidth)
		rest, err := e.execOps(ctx, c, ops, i+1, cost, fallthroughPC)
		if err != nil {
			return true, nil, err
		}
		out = append(out, rest...)
	}
	return true, out, nil
}

// fanOutAddress resolves a symbolic address to up to FanoutLimit feasible
// concrete aliases (§4.E "each alias forks a state", §8 scenario 6). Every
// returned child already has the equality constraint pushed and has been
// feasibility-checked.
func (e *Engine) fanOutAddress(ctx context.Context, s *state.State, addr ga.Value) ([]uint64, []*state.State, error) {
	g := s.Gateway
	limit := e.FanoutLimit
	if limit <= 0 {
		limit = 1
	}
	solutions, err := g.SolutionsFor(ctx, addr.Sym, nil, limit)
	if err != nil {
		return nil, nil, err
	}
	var values []uint64
	var children []*state.State
	for _, v := range solutions {
		cond := g.Eq(addr.Sym, g.Literal(32, v))
		c, ok, err := s.Assume(ctx, cond)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			values = append(values, v)
			children = append(children, c)
		}
	}
	return values, children, nil
}

// resolveFanout is fanOutAddress's sibling for resolving a symbolic PC or
// indirect-branch target, applying cont to each feasible concrete value.
func (e *Engine) resolveFanout(ctx context.Context, s *state.State, target ga.Value, cont func(*state.State, uint32) ([]*state.State, error)) ([]*state.State, error) {
	values, children, err := e.fanOutAddress(ctx, s, target)
	if err != nil {
		return nil, err
	}
	var out []*state.State
	for idx, c := range children {
		rest, err := cont(c, uint32(values[idx]))
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

func (e *Engine) execBranch(ctx context.Context, s *state.State, op ga.Op, cost ga.CycleCost, fallthroughPC uint32) ([]*state.State, error) {
	g := s.Gateway
	targetAddr, err := e.resolveTarget(s, op.Target)
	if err != nil {
		return nil, err
	}

	if op.Cond == ga.CondAL {
		s.AddCycles(cost.Charge(true))
		s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(targetAddr)))
		return []*state.State{s}, nil
	}

	condExpr, concreteTaken, isConcrete := evalCond(g, s, op.Cond)
	if isConcrete {
		s.AddCycles(cost.Charge(concreteTaken))
		if concreteTaken {
			s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(targetAddr)))
		} else {
			s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(fallthroughPC)))
		}
		return []*state.State{s}, nil
	}

	tChild, fChild, tOK, fOK, err := s.Fork(ctx, condExpr)
	if err != nil {
		return nil, err
	}
	e.debugFork("branch", tOK, fOK)
	var out []*state.State
	if tOK {
		tChild.AddCycles(cost.Charge(true))
		tChild.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(targetAddr)))
		out = append(out, tChild)
	}
	if fOK {
		fChild.AddCycles(cost.Charge(false))
		fChild.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(fallthroughPC)))
		out = append(out, fChild)
	}
	return out, nil
}

// resolveTarget returns the concrete destination for a Target that is
// already concrete. Register targets are resolved by the caller via
// resolveFanout/execIndirect instead, since they may be symbolic.
func (e *Engine) resolveTarget(s *state.State, t ga.Target) (uint32, error) {
	if t.Concrete {
		return t.Addr, nil
	}
	v := s.Regs.Read(t.Reg)
	if v.IsSymbolic() {
		return 0, fmt.Errorf("exec: resolveTarget called with a symbolic register target; use resolveFanout")
	}
	return uint32(v.Conc), nil
}

func (e *Engine) execIndirect(ctx context.Context, s *state.State, op ga.Op, cost ga.CycleCost) ([]*state.State, error) {
	v := s.Regs.Read(op.Target.Reg)
	finish := func(c *state.State, addr uint32) ([]*state.State, error) {
		c.AddCycles(cost.Charge(true))
		if op.IsReturn {
			return e.finishReturn(c, addr)
		}
		c.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(addr)))
		return []*state.State{c}, nil
	}
	if v.IsSymbolic() {
		return e.resolveFanout(ctx, s, v, finish)
	}
	return finish(s, uint32(v.Conc))
}

func (e *Engine) execCall(ctx context.Context, s *state.State, op ga.Op, cost ga.CycleCost, fallthroughPC uint32) ([]*state.State, error) {
	linkReg := op.Dst
	if linkReg == "" {
		linkReg = ga.RegLR
	}
	s.Regs.Write(linkReg, ga.Concrete(ga.Width32, uint64(fallthroughPC)))
	s.CallDepth++

	finish := func(c *state.State, addr uint32) ([]*state.State, error) {
		c.AddCycles(cost.Charge(true))
		c.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(addr)))
		return []*state.State{c}, nil
	}
	if !op.Target.Concrete {
		v := s.Regs.Read(op.Target.Reg)
		if v.IsSymbolic() {
			return e.resolveFanout(ctx, s, v, finish)
		}
		return finish(s, uint32(v.Conc))
	}
	return finish(s, op.Target.Addr)
}

func (e *Engine) execReturn(ctx context.Context, s *state.State, cost ga.CycleCost) ([]*state.State, error) {
	s.AddCycles(cost.Charge(false))
	// PC for a POP{...,pc}-style return was already loaded into RegPC by
	// the preceding OpKindLoad in the block; this op only adjusts the
	// call-depth bookkeeping and detects entry-relative termination.
	pc := s.Regs.Read(ga.RegPC)
	if pc.IsSymbolic() {
		return e.resolveFanout(ctx, s, pc, func(c *state.State, addr uint32) ([]*state.State, error) {
			return e.finishReturn(c, addr)
		})
	}
	return e.finishReturn(s, uint32(pc.Conc))
}

func (e *Engine) finishReturn(s *state.State, addr uint32) ([]*state.State, error) {
	if s.CallDepth == 0 {
		s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(addr)))
		s.Terminate(state.TerminatedNormal, nil)
		e.debugTerminate(s)
		return []*state.State{s}, nil
	}
	s.CallDepth--
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(addr)))
	return []*state.State{s}, nil
}

