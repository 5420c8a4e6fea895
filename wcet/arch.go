package wcet

import (
	"fmt"

	"symex/decode/armv6m"
	"symex/decode/armv7m"
	"symex/decode/decoder"
	"symex/decode/rv32i"
	"symex/exec"
	"symex/ga"
)

// archProfile captures the ABI conventions Analyze needs to seed an entry
// state and interpret calling-convention registers, per supported ISA
// (§6 "architecture selector ∈ {armv6m, armv7m, armv7em, rv32i}").
type archProfile struct {
	newDecoder func() decoder.Decoder
	argRegs    []ga.Reg
	linkReg    ga.Reg
	retReg     ga.Reg
	spReg      ga.Reg
	width      ga.Width
}

func profileFor(arch string) (archProfile, error) {
	switch arch {
	case "armv6m":
		return archProfile{
			newDecoder: func() decoder.Decoder { return armv6m.New() },
			argRegs:    []ga.Reg{"r0", "r1", "r2", "r3"},
			linkReg:    ga.RegLR,
			retReg:     "r0",
			spReg:      ga.RegSP,
			width:      ga.Width32,
		}, nil
	case "armv7m":
		return archProfile{
			newDecoder: func() decoder.Decoder { return armv7m.New(false) },
			argRegs:    []ga.Reg{"r0", "r1", "r2", "r3"},
			linkReg:    ga.RegLR,
			retReg:     "r0",
			spReg:      ga.RegSP,
			width:      ga.Width32,
		}, nil
	case "armv7em":
		return archProfile{
			newDecoder: func() decoder.Decoder { return armv7m.New(true) },
			argRegs:    []ga.Reg{"r0", "r1", "r2", "r3"},
			linkReg:    ga.RegLR,
			retReg:     "r0",
			spReg:      ga.RegSP,
			width:      ga.Width32,
		}, nil
	case "rv32i":
		return archProfile{
			newDecoder: func() decoder.Decoder { return rv32i.New() },
			argRegs:    []ga.Reg{"x10", "x11", "x12", "x13"},
			linkReg:    "x1",
			retReg:     "x10",
			spReg:      "x2",
			width:      ga.Width32,
		}, nil
	}
	return archProfile{}, fmt.Errorf("wcet: unknown architecture %q", arch)
}

// buildEngine wires a decoder cache, the ELF symbol table, and the standard
// intrinsics library into an exec.Engine for this architecture.
func buildEngine(p archProfile, img decoder.Image, symbols exec.Symbols, panicSymbol string, fanout, cacheSize int) (*exec.Engine, error) {
	cached, err := decoder.NewCache(p.newDecoder(), cacheSize)
	if err != nil {
		return nil, fmt.Errorf("wcet: building decoder cache: %w", err)
	}
	return &exec.Engine{
		Decoder:     cached,
		Image:       img,
		Symbols:     symbols,
		PanicSymbol: panicSymbol,
		Intrinsics:  exec.StandardIntrinsics(),
		ArgRegs:     p.argRegs,
		LinkReg:     p.linkReg,
		RetReg:      p.retReg,
		FanoutLimit: fanout,
	}, nil
}
