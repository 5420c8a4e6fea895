package exec

import (
	"context"
	"testing"

	"symex/ga"
	"symex/state"
)

func newIntrinsicEngine() *Engine {
	return &Engine{
		Intrinsics: StandardIntrinsics(),
		LinkReg:    ga.RegLR,
		RetReg:     "r0",
		ArgRegs:    []ga.Reg{"r0", "r1", "r2", "r3"},
	}
}

func TestSymbolicIntrinsicMarksRegionFreshSymbolic(t *testing.T) {
	e := newIntrinsicEngine()
	s := newTestState(20)
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	s.Mem.WriteByte(ga.Concrete(ga.Width32, 0x5000), ga.Concrete(ga.Width8, 0xAB))

	args := []ga.Value{ga.Concrete(ga.Width32, 0x5000), ga.Concrete(ga.Width32, 2)}
	out, err := symbolicHook(context.Background(), e, s, args)
	if err != nil {
		t.Fatalf("symbolicHook: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	res := out[0]
	if res.Regs.Read(ga.RegPC).Conc != 0x1004 {
		t.Fatalf("PC after intrinsic = %#x, want return address 0x1004", res.Regs.Read(ga.RegPC).Conc)
	}
	b0 := res.Mem.ReadByte(ga.Concrete(ga.Width32, 0x5000))
	b1 := res.Mem.ReadByte(ga.Concrete(ga.Width32, 0x5001))
	if !b0.IsSymbolic() || !b1.IsSymbolic() {
		t.Fatalf("expected both bytes to become symbolic, got %+v %+v", b0, b1)
	}
	if len(res.Inputs) != 2 {
		t.Fatalf("Inputs recorded %d entries, want 2", len(res.Inputs))
	}
}

func TestAssumeIntrinsicDropsInfeasiblePath(t *testing.T) {
	e := newIntrinsicEngine()
	s := newTestState(21)
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	x := s.Gateway.Var("x", 32)
	s.PC.Push(s.Gateway.Eq(x, s.Gateway.Literal(32, 0)))
	s.Regs.Write("r0", ga.Symbolic(ga.Width32, x))

	out, err := assumeHook(context.Background(), e, s, []ga.Value{s.Regs.Read("r0")})
	if err != nil {
		t.Fatalf("assumeHook: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	if out[0].St.Kind != state.TerminatedAssumptionViolated {
		t.Fatalf("status = %v, want TerminatedAssumptionViolated", out[0].St.Kind)
	}
}

func TestAssumeIntrinsicContinuesFeasiblePath(t *testing.T) {
	e := newIntrinsicEngine()
	s := newTestState(22)
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	s.CallDepth = 1 // the call instruction that reached the hook

	out, err := assumeHook(context.Background(), e, s, []ga.Value{ga.Concrete(ga.Width32, 1)})
	if err != nil {
		t.Fatalf("assumeHook: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d successors, want 1", len(out))
	}
	if out[0].St.Kind != state.Running {
		t.Fatalf("status = %v, want Running", out[0].St.Kind)
	}
	if out[0].Regs.Read(ga.RegPC).Conc != 0x1004 {
		t.Fatalf("PC after assume = %#x, want return address 0x1004", out[0].Regs.Read(ga.RegPC).Conc)
	}
}

func TestAssumeIntrinsicConcreteFalseTerminates(t *testing.T) {
	e := newIntrinsicEngine()
	s := newTestState(23)
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))

	out, err := assumeHook(context.Background(), e, s, []ga.Value{ga.Concrete(ga.Width32, 0)})
	if err != nil {
		t.Fatalf("assumeHook: %v", err)
	}
	if out[0].St.Kind != state.TerminatedAssumptionViolated {
		t.Fatalf("status = %v, want TerminatedAssumptionViolated", out[0].St.Kind)
	}
}

func TestSuppressPathIntrinsicTerminatesSuppressed(t *testing.T) {
	e := newIntrinsicEngine()
	s := newTestState(24)
	out, err := suppressPathHook(context.Background(), e, s, nil)
	if err != nil {
		t.Fatalf("suppressPathHook: %v", err)
	}
	if out[0].St.Kind != state.TerminatedSuppressed {
		t.Fatalf("status = %v, want TerminatedSuppressed", out[0].St.Kind)
	}
}

func TestIsSymbolicIntrinsicReportsConcreteZeroOrOne(t *testing.T) {
	e := newIntrinsicEngine()

	s := newTestState(25)
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	out, err := isSymbolicHook(context.Background(), e, s, []ga.Value{ga.Concrete(ga.Width32, 7)})
	if err != nil {
		t.Fatalf("isSymbolicHook: %v", err)
	}
	if out[0].Regs.Read("r0").Conc != 0 {
		t.Fatalf("is_symbolic(concrete) = %d, want 0", out[0].Regs.Read("r0").Conc)
	}

	s2 := newTestState(26)
	s2.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	x := s2.Gateway.Var("x", 32)
	out2, err := isSymbolicHook(context.Background(), e, s2, []ga.Value{ga.Symbolic(ga.Width32, x)})
	if err != nil {
		t.Fatalf("isSymbolicHook: %v", err)
	}
	if out2[0].Regs.Read("r0").Conc != 1 {
		t.Fatalf("is_symbolic(symbolic) = %d, want 1", out2[0].Regs.Read("r0").Conc)
	}
}

func TestStepRecognizesIntrinsicBeforeDecoding(t *testing.T) {
	e := &Engine{
		Intrinsics: StandardIntrinsics(),
		LinkReg:    ga.RegLR,
		RetReg:     "r0",
		ArgRegs:    []ga.Reg{"r0"},
		Symbols:    Symbols{ByAddr: map[uint32]string{0x9000: "is_symbolic"}},
	}
	s := newTestState(27)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, 0x9000))
	s.Regs.Write(ga.RegLR, ga.Concrete(ga.Width32, 0x1004))
	s.Regs.Write("r0", ga.Concrete(ga.Width32, 3))

	out, err := e.Step(context.Background(), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out[0].Regs.Read(ga.RegPC).Conc != 0x1004 {
		t.Fatalf("PC after intrinsic step = %#x, want 0x1004", out[0].Regs.Read(ga.RegPC).Conc)
	}
}

func TestStepRecognizesPanicSymbol(t *testing.T) {
	e := &Engine{
		Symbols:     Symbols{ByAddr: map[uint32]string{0x9100: "__panic"}},
		PanicSymbol: "__panic",
	}
	s := newTestState(28)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, 0x9100))
	out, err := e.Step(context.Background(), s)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out[0].St.Kind != state.TerminatedPanic {
		t.Fatalf("status = %v, want TerminatedPanic", out[0].St.Kind)
	}
}
