package wcet

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"symex/decode/decoder"
	"symex/exec"
	"symex/ga"
	"symex/smt/reference"
	"symex/state"
)

// fakeProgram is a tiny decoder.Decoder backed by a fixed table of
// pre-built blocks, keyed by PC. It lets these tests exercise the
// driver's path-exploration/witness/dedup semantics against a known GA
// program without hand-encoding real Thumb/RV32I instruction bytes.
type fakeProgram struct {
	blocks map[uint32]ga.Block
}

func (p *fakeProgram) Decode(img decoder.Image, pc uint32) (ga.Block, error) {
	b, ok := p.blocks[pc]
	if !ok {
		return ga.Block{}, decoder.Unimplemented(0, pc)
	}
	return b, nil
}

func (p *fakeProgram) Arch() string { return "fake" }

// fakeImage satisfies decoder.Image without ever being consulted: every
// fakeProgram.Decode call ignores it, and the standard intrinsics never
// read instruction bytes either.
type fakeImage struct{}

func (fakeImage) ReadCode(addr uint32, n int) ([]byte, error) {
	return make([]byte, n), nil
}

const (
	testArgReg  ga.Reg = "a0"
	testRetReg  ga.Reg = "a0"
	testLinkReg ga.Reg = "lr"
	entryPC     uint32 = 0x1000
)

func newScenarioEngine(blocks map[uint32]ga.Block, panicSymbol string, symbols map[uint32]string) *exec.Engine {
	return &exec.Engine{
		Decoder:     &fakeProgram{blocks: blocks},
		Image:       fakeImage{},
		Symbols:     exec.Symbols{ByAddr: symbols},
		PanicSymbol: panicSymbol,
		Intrinsics:  exec.StandardIntrinsics(),
		ArgRegs:     []ga.Reg{testArgReg},
		LinkReg:     testLinkReg,
		RetReg:      testRetReg,
		FanoutLimit: 8,
	}
}

// retBlock returns the two-op tail every scenario function uses to end a
// path: copy the link register into PC, then return, which terminates
// Normal at call depth zero.
func retBlock(cost ga.CycleCost, addr uint32) (uint32, ga.Block) {
	return addr, ga.Block{
		Ops: []ga.Op{
			{Kind: ga.OpKindMove, Dst: ga.RegPC, Src1: testLinkReg, Width: ga.Width32},
			{Kind: ga.OpKindReturn},
		},
		Cost: cost,
		Len:  4,
	}
}

func rootState(arg ga.Value) *state.State {
	g := reference.New(1)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(entryPC)))
	s.Regs.Write(testLinkReg, ga.Concrete(ga.Width32, 0))
	s.Regs.Write(testArgReg, arg)
	return s
}

// Scenario 1: a constant function with no branches has a single path and
// a WCET equal to the sum of its blocks' uniform costs.
func TestScenarioConstantFunction(t *testing.T) {
	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops:  []ga.Op{{Kind: ga.OpKindAlu, Dst: "t0", Src1: testArgReg, Alu: ga.OpAdd, UseImm: true, Imm: 1, Width: ga.Width32}},
			Cost: ga.Uniform(5),
			Len:  4,
		},
	}
	retAddr, retBlk := retBlock(ga.Uniform(3), entryPC+4)
	blocks[retAddr] = retBlk

	e := newScenarioEngine(blocks, "", nil)
	root := rootState(ga.Concrete(ga.Width32, 7))

	res, err := AnalyzeEngine(context.Background(), e, root, Request{MaxSteps: 100, MaxPaths: 100})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	if res.WCETCycles != 8 {
		t.Fatalf("WCETCycles = %d, want 8", res.WCETCycles)
	}
	if res.Incomplete {
		t.Fatalf("expected a complete analysis")
	}
	if len(res.Summaries) != 1 {
		t.Fatalf("Summaries = %d, want 1", len(res.Summaries))
	}
}

// Scenario 2: a data-dependent branch on a symbolic argument forks into
// two paths with distinct costs; WCET reports the more expensive arm.
func TestScenarioDataDependentBranch(t *testing.T) {
	const takenPC = entryPC + 0x100
	const notTakenPC = entryPC + 0x200

	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops: []ga.Op{
				{Kind: ga.OpKindAlu, Dst: "__flags_only", Src1: testArgReg, Alu: ga.OpSub, UseImm: true, Imm: 0, Width: ga.Width32, SetFlags: true},
				{Kind: ga.OpKindBranch, Cond: ga.CondEQ, Target: ga.ConcreteTarget(takenPC)},
			},
			Cost: ga.BranchDependent(4, 2),
			Len:  4,
		},
	}
	takenAddr, takenBlk := retBlock(ga.Uniform(50), takenPC)
	notTakenAddr, notTakenBlk := retBlock(ga.Uniform(9), notTakenPC)
	blocks[takenAddr] = takenBlk
	blocks[notTakenAddr] = notTakenBlk
	blocks[entryPC+4] = notTakenBlk // fallthrough address reuses not-taken block

	e := newScenarioEngine(blocks, "", nil)
	g := reference.New(1)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(entryPC)))
	s.Regs.Write(testLinkReg, ga.Concrete(ga.Width32, 0))
	s.FreshSymbolicReg(testArgReg, "arg0", ga.Width32)

	res, err := AnalyzeEngine(context.Background(), e, s, Request{MaxSteps: 100, MaxPaths: 100})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	if res.WCETCycles != 54 {
		t.Fatalf("WCETCycles = %d, want 54 (4 branch + 50 taken arm)", res.WCETCycles)
	}
	if len(res.Summaries) != 2 {
		t.Fatalf("Summaries = %d, want 2 (one per arm)", len(res.Summaries))
	}
	if res.Witness["arg0"] != 0 {
		t.Fatalf("Witness[arg0] = %d, want 0 (the equality branch that reaches the expensive arm)", res.Witness["arg0"])
	}
}

// Scenario 3: a bounded loop with a concrete trip count explores exactly
// that many iterations and reports WCET for the fully-unrolled path.
func TestScenarioBoundedLoop(t *testing.T) {
	const loopPC = entryPC + 0x10

	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops:  []ga.Op{{Kind: ga.OpKindMove, Dst: "ctr", Src1: "", UseImm: true, Imm: 3, Width: ga.Width32}},
			Cost: ga.Uniform(1),
			Len:  0x10, // falls through straight into loopPC
		},
		loopPC: {
			Ops: []ga.Op{
				{Kind: ga.OpKindAlu, Dst: "ctr", Src1: "ctr", Alu: ga.OpSub, UseImm: true, Imm: 1, Width: ga.Width32, SetFlags: true},
				{Kind: ga.OpKindBranch, Cond: ga.CondNE, Target: ga.ConcreteTarget(loopPC)},
			},
			Cost: ga.BranchDependent(6, 2),
			Len:  4,
		},
	}
	exitAddr, exitBlk := retBlock(ga.Uniform(4), loopPC+4)
	blocks[exitAddr] = exitBlk // fallthrough out of the loop once ctr hits zero

	e := newScenarioEngine(blocks, "", nil)
	root := rootState(ga.Value{})

	res, err := AnalyzeEngine(context.Background(), e, root, Request{MaxSteps: 1000, MaxPaths: 1000})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	// entry(1) + loopPC taken twice (ctr: 3->2, 2->1) at 6 each + one
	// not-taken exit (ctr: 1->0) at 2 + the exit block's ret(4).
	want := uint64(1 + 6*2 + 2 + 4)
	if res.WCETCycles != want {
		t.Fatalf("WCETCycles = %d, want %d", res.WCETCycles, want)
	}
}

// Scenario 4: assume() gates a path on a constraint; of two forked paths
// that both reach the call, the one whose concrete cond is zero is
// dropped as Terminated(AssumptionViolated) and never contributes to WCET.
func TestScenarioAssumptionGating(t *testing.T) {
	const pathA = entryPC + 0x10 // arg0 == 0: cond := 0, assume(0) violates
	const pathB = entryPC + 0x4  // arg0 != 0: cond := 1, assume(1) continues
	const pathBCont = pathB + 0x4
	const assumeSymAddr uint32 = 0x9000

	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops: []ga.Op{
				{Kind: ga.OpKindAlu, Dst: "__flags_only", Src1: testArgReg, Alu: ga.OpSub, UseImm: true, Imm: 0, Width: ga.Width32, SetFlags: true},
				{Kind: ga.OpKindBranch, Cond: ga.CondEQ, Target: ga.ConcreteTarget(pathA)},
			},
			Cost: ga.BranchDependent(1, 1),
			Len:  4,
		},
		pathA: {
			Ops: []ga.Op{
				{Kind: ga.OpKindMove, Dst: "cond", UseImm: true, Imm: 0, Width: ga.Width32},
				{Kind: ga.OpKindCall, Target: ga.ConcreteTarget(assumeSymAddr), Dst: testLinkReg},
			},
			Cost: ga.Uniform(2),
			Len:  4,
		},
		pathB: {
			Ops: []ga.Op{
				{Kind: ga.OpKindMove, Dst: "cond", UseImm: true, Imm: 1, Width: ga.Width32},
				{Kind: ga.OpKindCall, Target: ga.ConcreteTarget(assumeSymAddr), Dst: testLinkReg},
			},
			Cost: ga.Uniform(2),
			Len:  4,
		},
	}
	retAddr, retBlk := retBlock(ga.Uniform(3), pathBCont)
	blocks[retAddr] = retBlk

	e := newScenarioEngine(blocks, "", map[uint32]string{assumeSymAddr: "assume"})
	e.ArgRegs = []ga.Reg{"cond"}
	g := reference.New(1)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(entryPC)))
	s.Regs.Write(testLinkReg, ga.Concrete(ga.Width32, 0))
	s.FreshSymbolicReg(testArgReg, "arg0", ga.Width32)

	res, err := AnalyzeEngine(context.Background(), e, s, Request{MaxSteps: 100, MaxPaths: 100})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	foundViolated, foundNormal := false, false
	for _, sum := range res.Summaries {
		switch sum.Status {
		case "Terminated(AssumptionViolated)":
			foundViolated = true
		case "Terminated(Normal)":
			foundNormal = true
			if sum.Cycles != res.WCETCycles {
				t.Fatalf("the single surviving Normal path's cycles should equal WCETCycles")
			}
		}
	}
	if !foundViolated {
		t.Fatalf("expected the arg0==0 arm to report Terminated(AssumptionViolated)\nsummaries: %s", spew.Sdump(res.Summaries))
	}
	if !foundNormal {
		t.Fatalf("expected the arg0!=0 arm to survive as Terminated(Normal)\nsummaries: %s", spew.Sdump(res.Summaries))
	}
}

// Scenario 5: reaching the configured panic symbol is reported regardless
// of its cycle count, even when a cheaper normal path also exists.
func TestScenarioPanicDiscovery(t *testing.T) {
	const panicPC = entryPC + 0x100
	const normalPC = entryPC + 0x200

	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops: []ga.Op{
				{Kind: ga.OpKindAlu, Dst: "__flags_only", Src1: testArgReg, Alu: ga.OpSub, UseImm: true, Imm: 0, Width: ga.Width32, SetFlags: true},
				{Kind: ga.OpKindBranch, Cond: ga.CondEQ, Target: ga.ConcreteTarget(panicPC)},
			},
			Cost: ga.BranchDependent(1, 1),
			Len:  4,
		},
	}
	normalAddr, normalBlk := retBlock(ga.Uniform(9), normalPC)
	blocks[normalAddr] = normalBlk
	blocks[entryPC+4] = normalBlk

	e := newScenarioEngine(blocks, "panic_handler", map[uint32]string{panicPC: "panic_handler"})
	g := reference.New(1)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(entryPC)))
	s.Regs.Write(testLinkReg, ga.Concrete(ga.Width32, 0))
	s.FreshSymbolicReg(testArgReg, "arg0", ga.Width32)

	res, err := AnalyzeEngine(context.Background(), e, s, Request{MaxSteps: 100, MaxPaths: 100})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	if !res.PanicFound {
		t.Fatalf("expected PanicFound")
	}
	if res.PanicWitness["arg0"] != 0 {
		t.Fatalf("PanicWitness[arg0] = %d, want 0 (the equality arm that reaches panic_handler)", res.PanicWitness["arg0"])
	}
	if res.WCETCycles == 0 {
		t.Fatalf("the surviving normal path should still report a WCET")
	}
}

// Scenario 6: a load through a symbolic address fans out into one child
// per feasible alias, each charged identically since the load itself has
// a fixed cost.
func TestScenarioSymbolicLoadAddress(t *testing.T) {
	blocks := map[uint32]ga.Block{
		entryPC: {
			Ops: []ga.Op{
				{Kind: ga.OpKindLoad, Dst: "val", AddrReg: testArgReg, MemWidth: ga.Width32},
			},
			Cost: ga.Uniform(2),
			Len:  4,
		},
	}
	retAddr, retBlk := retBlock(ga.Uniform(3), entryPC+4)
	blocks[retAddr] = retBlk

	e := newScenarioEngine(blocks, "", nil)
	g := reference.New(1)
	s := state.NewState(g)
	s.Regs.Write(ga.RegPC, ga.Concrete(ga.Width32, uint64(entryPC)))
	s.Regs.Write(testLinkReg, ga.Concrete(ga.Width32, 0))
	s.FreshSymbolicReg(testArgReg, "ptr", ga.Width32)

	res, err := AnalyzeEngine(context.Background(), e, s, Request{MaxSteps: 100, MaxPaths: 100, FanoutLimit: 4})
	if err != nil {
		t.Fatalf("AnalyzeEngine: %v", err)
	}
	if len(res.Summaries) == 0 {
		t.Fatalf("expected at least one fanned-out terminal")
	}
	for _, sum := range res.Summaries {
		if sum.Cycles != 5 {
			t.Fatalf("every alias should charge the same 2+3 cycles, got %d", sum.Cycles)
		}
	}
}
