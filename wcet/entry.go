package wcet

import (
	"symex/elfimage"
	"symex/ga"
	"symex/smt"
	"symex/state"
)

// defaultStackTop is the concrete stack-pointer seed used when the caller
// doesn't supply one via InitialBindings["sp"]. It sits well above any
// Cortex-M/RV32I demo image's .bss in this engine's test fixtures; a real
// analysis of a specific target should override it via InitialBindings.
const defaultStackTop = 0x20010000

// entryReturnSentinel is the concrete value seeded into the link register
// (lr on ARM, x1/ra on RV32I) before execution starts. The entry function's
// own prologue never dereferences it; it only ever reaches a register file
// read when the function's own epilogue (bx lr, ret, jalr x0,0(x1), ...)
// returns, at which point finishReturn sees CallDepth == 0 and terminates
// Normal without examining the address itself. Any fixed, non-symbolic
// value works here; this one is conventionally invalid code so a bug that
// somehow dereferenced it would stand out in a witness.
const entryReturnSentinel = 0xFFFFFFFE

// buildEntryState constructs the root path state for an analysis run: the
// ELF's loadable segments mapped into concrete memory, the stack pointer
// seeded concrete, and the calling convention's argument registers seeded
// symbolic (or bound concrete, for any name present in bindings) per §4
// ("F seeds an initial symbolic state in C: arguments symbolic per ABI,
// stack pointer concrete").
func buildEntryState(g smt.Gateway, p archProfile, entry uint32, regions []elfimage.Region, bindings map[string]uint64) *state.State {
	s := state.NewState(g)
	for _, r := range regions {
		s.Mem.MapConcrete(r.Addr, r.Data, r.Writable)
	}

	sp := uint64(defaultStackTop)
	if v, ok := bindings["sp"]; ok {
		sp = v
	}
	s.Regs.Write(p.spReg, ga.Concrete(p.width, sp))
	s.Regs.Write(ga.RegPC, ga.Concrete(p.width, uint64(entry)))
	s.Regs.Write(p.linkReg, ga.Concrete(p.width, entryReturnSentinel))

	for i, r := range p.argRegs {
		name := argName(i)
		if v, ok := bindings[name]; ok {
			s.Regs.Write(r, ga.Concrete(p.width, v))
			continue
		}
		s.FreshSymbolicReg(r, name, p.width)
	}
	return s
}

func argName(i int) string {
	const names = "0123456789"
	if i < len(names) {
		return "arg" + string(names[i])
	}
	return "argN"
}
