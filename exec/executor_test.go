package exec

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"symex/ga"
	"symex/smt/reference"
	"symex/state"
)

func newTestState(seed int64) *state.State {
	g := reference.New(seed)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, 0x1000))
	return s
}

func TestExecOpsFallsThroughAndChargesUniformCost(t *testing.T) {
	e := &Engine{}
	s := newTestState(1)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 2))
	s.Regs.Write("r1", ga.Concrete(ga.Width32, 3))
	ops := []ga.Op{
		{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: "r0", Src1: "r0", Src2: "r1", Width: ga.Width32},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(1), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	if out[0].Regs.Read("r0").Conc != 5 {
		t.Fatalf("r0 = %d, want 5", out[0].Regs.Read("r0").Conc)
	}
	if out[0].Cycles != 1 {
		t.Fatalf("Cycles = %d, want 1", out[0].Cycles)
	}
	if out[0].Regs.Read(ga.RegPC).Conc != 0x1002 {
		t.Fatalf("PC = %#x, want 0x1002", out[0].Regs.Read(ga.RegPC).Conc)
	}
}

func TestExecOpsSetFlagsZero(t *testing.T) {
	e := &Engine{}
	s := newTestState(2)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 5))
	ops := []ga.Op{
		{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: "r0", Src1: "r0", UseImm: true, Imm: 5, Width: ga.Width32, SetFlags: true},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(1), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	if out[0].Regs.Read(ga.FlagZ).Conc != 1 {
		t.Fatalf("Z flag = %d, want 1", out[0].Regs.Read(ga.FlagZ).Conc)
	}
	if out[0].Regs.Read(ga.FlagN).Conc != 0 {
		t.Fatalf("N flag = %d, want 0", out[0].Regs.Read(ga.FlagN).Conc)
	}
}

func TestExecBranchConcreteConditionSkipsSolver(t *testing.T) {
	e := &Engine{}
	s := newTestState(3)
	s.Regs.Write(ga.FlagZ, ga.Concrete(ga.Width1, 1))
	op := ga.Op{Kind: ga.OpKindBranch, Cond: ga.CondEQ, Target: ga.ConcreteTarget(0x2000)}
	out, err := e.execBranch(context.Background(), s, op, ga.BranchDependent(3, 1), 0x1002)
	if err != nil {
		t.Fatalf("execBranch: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	if out[0].Regs.Read(ga.RegPC).Conc != 0x2000 {
		t.Fatalf("PC = %#x, want 0x2000 (branch taken)", out[0].Regs.Read(ga.RegPC).Conc)
	}
	if out[0].Cycles != 3 {
		t.Fatalf("Cycles = %d, want 3 (taken cost)", out[0].Cycles)
	}
}

func TestExecBranchSymbolicConditionForksBothSides(t *testing.T) {
	e := &Engine{}
	s := newTestState(4)
	z := s.Gateway.Var("z", 1)
	s.Regs.Write(ga.FlagZ, ga.Symbolic(ga.Width1, z))
	op := ga.Op{Kind: ga.OpKindBranch, Cond: ga.CondEQ, Target: ga.ConcreteTarget(0x2000)}
	out, err := e.execBranch(context.Background(), s, op, ga.BranchDependent(3, 1), 0x1002)
	if err != nil {
		t.Fatalf("execBranch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d successors, want 2 (both sides feasible)", len(out))
	}
	seenTaken, seenNotTaken := false, false
	for _, c := range out {
		pc := c.Regs.Read(ga.RegPC).Conc
		switch pc {
		case 0x2000:
			seenTaken = true
			if c.Cycles != 3 {
				t.Fatalf("taken child Cycles = %d, want 3", c.Cycles)
			}
		case 0x1002:
			seenNotTaken = true
			if c.Cycles != 1 {
				t.Fatalf("not-taken child Cycles = %d, want 1", c.Cycles)
			}
		default:
			t.Fatalf("unexpected PC %#x", pc)
		}
	}
	if !seenTaken || !seenNotTaken {
		t.Fatalf("expected both a taken and a not-taken successor")
	}
}

func TestExecDivideByZeroConcreteTerminatesError(t *testing.T) {
	e := &Engine{}
	s := newTestState(5)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 10))
	s.Regs.Write("r1", ga.Concrete(ga.Width32, 0))
	ops := []ga.Op{
		{Kind: ga.OpKindAlu, Alu: ga.OpUDiv, Dst: "r0", Src1: "r0", Src2: "r1", Width: ga.Width32},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(1), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	if out[0].St.Kind != state.ErrorStatus {
		t.Fatalf("status = %v, want ErrorStatus", out[0].St.Kind)
	}
	if _, ok := out[0].St.Err.(DivideByZero); !ok {
		t.Fatalf("err = %v, want DivideByZero", out[0].St.Err)
	}
}

func TestExecDivideBySymbolicForksZeroAndNonzero(t *testing.T) {
	e := &Engine{}
	s := newTestState(6)
	divisor := s.Gateway.Var("d", 32)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 10))
	s.Regs.Write("r1", ga.Symbolic(ga.Width32, divisor))
	ops := []ga.Op{
		{Kind: ga.OpKindAlu, Alu: ga.OpUDiv, Dst: "r0", Src1: "r0", Src2: "r1", Width: ga.Width32},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(1), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d successors, want 2 (zero-divisor and nonzero-divisor)", len(out))
	}
	sawError, sawNormal := false, false
	for _, c := range out {
		if c.St.Kind == state.ErrorStatus {
			sawError = true
		}
		if c.St.Kind == state.Running {
			sawNormal = true
			if c.Regs.Read(ga.RegPC).Conc != 0x1002 {
				t.Fatalf("continuing child PC = %#x, want fallthrough", c.Regs.Read(ga.RegPC).Conc)
			}
		}
	}
	if !sawError || !sawNormal {
		t.Fatalf("expected one Error child and one continuing child")
	}
}

func TestExecLoadSignExtendsNarrowResult(t *testing.T) {
	e := &Engine{}
	s := newTestState(7)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 0x4000))
	s.Mem.WriteByte(ga.Concrete(ga.Width32, 0x4000), ga.Concrete(ga.Width8, 0xFF)) // -1 as int8
	ops := []ga.Op{
		{Kind: ga.OpKindLoad, Dst: "r1", AddrReg: "r0", MemWidth: ga.Width8, SignExtendLoad: true},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(2), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	got := out[0].Regs.Read("r1")
	if got.Conc != 0xFFFFFFFF {
		t.Fatalf("r1 = %#x, want 0xffffffff (sign-extended -1)", got.Conc)
	}
}

func TestExecLoadZeroExtendsNarrowResultByDefault(t *testing.T) {
	e := &Engine{}
	s := newTestState(8)
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 0x4000))
	s.Mem.WriteByte(ga.Concrete(ga.Width32, 0x4000), ga.Concrete(ga.Width8, 0xFF))
	ops := []ga.Op{
		{Kind: ga.OpKindLoad, Dst: "r1", AddrReg: "r0", MemWidth: ga.Width8},
	}
	out, err := e.execOps(context.Background(), s, ops, 0, ga.Uniform(2), 0x1002)
	if err != nil {
		t.Fatalf("execOps: %v", err)
	}
	got := out[0].Regs.Read("r1")
	if got.Conc != 0xFF {
		t.Fatalf("r1 = %#x, want 0xff (zero-extended)", got.Conc)
	}
}

func TestExecCallThenReturnToDepthZeroTerminatesNormal(t *testing.T) {
	e := &Engine{}
	s := newTestState(9)
	callOp := ga.Op{Kind: ga.OpKindCall, Target: ga.ConcreteTarget(0x3000)}
	out, err := e.execCall(context.Background(), s, callOp, ga.Uniform(4), 0x1002)
	if err != nil {
		t.Fatalf("execCall: %v", err)
	}
	called := out[0]
	if called.Regs.Read(ga.RegPC).Conc != 0x3000 {
		t.Fatalf("PC after call = %#x, want 0x3000", called.Regs.Read(ga.RegPC).Conc)
	}
	if called.Regs.Read(ga.RegLR).Conc != 0x1002 {
		t.Fatalf("LR after call = %#x, want return address 0x1002", called.Regs.Read(ga.RegLR).Conc)
	}
	if called.CallDepth != 1 {
		t.Fatalf("CallDepth after call = %d, want 1", called.CallDepth)
	}

	out, err = e.execReturn(context.Background(), called, ga.Uniform(4))
	if err != nil {
		t.Fatalf("execReturn: %v", err)
	}
	ret := out[0]
	if ret.St.Kind != state.Running {
		t.Fatalf("status after returning from the call = %v, want Running", ret.St.Kind)
	}
	if ret.CallDepth != 0 {
		t.Fatalf("CallDepth after return = %d, want 0", ret.CallDepth)
	}

	// A further return, now at depth zero, leaves the analysis entry itself.
	out, err = e.execReturn(context.Background(), ret, ga.Uniform(4))
	if err != nil {
		t.Fatalf("execReturn at depth zero: %v", err)
	}
	if out[0].St.Kind != state.TerminatedNormal {
		t.Fatalf("status = %v, want TerminatedNormal", out[0].St.Kind)
	}
}

func TestExecIndirectSymbolicTargetFansOutToSolutions(t *testing.T) {
	e := &Engine{FanoutLimit: 4}
	s := newTestState(10)
	target := s.Gateway.Var("target", 32)
	g := s.Gateway
	// Constrain target to exactly one of two concrete values so fan-out
	// is deterministic regardless of the reference solver's enumeration
	// strategy.
	s.PC.Push(g.BoolOr(g.Eq(target, g.Literal(32, 0x3000)), g.Eq(target, g.Literal(32, 0x4000))))
	s.Regs.Write("r0", ga.Symbolic(ga.Width32, target))
	op := ga.Op{Kind: ga.OpKindIndirect, Target: ga.RegTarget("r0")}
	out, err := e.execIndirect(context.Background(), s, op, ga.Uniform(1))
	if err != nil {
		t.Fatalf("execIndirect: %v", err)
	}
	seen := map[uint64]bool{}
	for _, c := range out {
		seen[c.Regs.Read(ga.RegPC).Conc] = true
	}
	if !seen[0x3000] || !seen[0x4000] {
		t.Fatalf("expected successors at both 0x3000 and 0x4000, got %v\nsuccessors: %s", seen, spew.Sdump(out))
	}
}
