// Package armv6m decodes the Thumb-1 encoding used by Cortex-M0/M0+ cores
// into GA blocks with Cortex-M0/M0+ instruction-set-summary cycle costs
// (§4.D). Dispatch mirrors disassemble.Step's table-switch-over-opcode-bits
// style: a large switch on the top encoding bits of each 16-bit halfword,
// falling through to sub-switches on the fields that vary within a group.
package armv6m

import (
	"encoding/binary"
	"fmt"

	"symex/decode/decoder"
	"symex/ga"
)

// Decoder implements decoder.Decoder for the ARMv6-M (Thumb-1) subset
// covering data-processing, load/store, and branch/call instruction
// classes actually reachable from the small embedded entry points this
// engine analyzes (§1: "small embedded programs").
type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Arch() string { return "armv6m" }

// gpReg names a low/high general register r0..r12 by decimal index; SP/LR/PC
// use the dedicated names above so the executor and ABI code can special-case
// them without string-matching.
func gpReg(n uint16) ga.Reg {
	switch n {
	case 13:
		return ga.RegSP
	case 14:
		return ga.RegLR
	case 15:
		return ga.RegPC
	default:
		return ga.Reg(fmt.Sprintf("r%d", n))
	}
}

func (d *Decoder) Decode(img decoder.Image, pc uint32) (ga.Block, error) {
	raw, err := img.ReadCode(pc, 2)
	if err != nil {
		return ga.Block{}, decoder.Truncated(pc, err)
	}
	ins := binary.LittleEndian.Uint16(raw)

	switch {
	case ins&0xFC00 == 0x4000: // AND/EOR/LSL/LSR/ASR/ADC/SBC/ROR/TST/NEG/CMP/CMN/ORR/MUL/BIC/MVN (data-processing register)
		return d.decodeDP(ins, pc)
	case ins&0xE000 == 0x0000 && ins&0xF800 != 0x1800: // shift by immediate
		return d.decodeShiftImm(ins, pc)
	case ins&0xF800 == 0x1800: // ADD/SUB register/immediate (3-bit)
		return d.decodeAddSub3(ins, pc)
	case ins&0xE000 == 0x2000: // MOV/CMP/ADD/SUB immediate (8-bit)
		return d.decodeImm8(ins, pc)
	case ins&0xFC00 == 0x4400: // ADD/CMP/MOV high register, BX/BLX
		return d.decodeHiReg(ins, pc)
	case ins&0xF800 == 0x4800: // LDR literal
		return d.decodeLdrLiteral(ins, pc)
	case ins&0xF000 == 0x5000 || ins&0xE000 == 0x6000 || ins&0xF000 == 0x8000: // LDR/STR register & immediate offset
		return d.decodeLoadStore(ins, pc)
	case ins&0xF000 == 0x9000: // LDR/STR SP-relative
		return d.decodeSPRelative(ins, pc)
	case ins&0xF000 == 0xA000: // ADR/ADD (SP/PC plus immediate)
		return d.decodeAddPCSP(ins, pc)
	case ins&0xFF00 == 0xB000: // ADD/SUB SP, #imm
		return d.decodeAddSubSP(ins, pc)
	case ins&0xF600 == 0xB400: // PUSH/POP
		return d.decodePushPop(ins, pc)
	case ins&0xFF00 == 0xBE00: // BKPT
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindHalt}}, Cost: ga.Uniform(1), Len: 2}, nil
	case ins&0xF000 == 0xD000: // conditional branch
		return d.decodeCondBranch(ins, pc)
	case ins&0xF800 == 0xE000: // unconditional branch
		return d.decodeUncondBranch(ins, pc)
	default:
		return ga.Block{}, decoder.Unimplemented(uint32(ins), pc)
	}
}

func (d *Decoder) decodeDP(ins uint16, pc uint32) (ga.Block, error) {
	opc := (ins >> 6) & 0xF
	rm := gpReg((ins >> 3) & 0x7)
	rdn := gpReg(ins & 0x7)
	var alu ga.AluOp
	switch opc {
	case 0x0:
		alu = ga.OpAnd
	case 0x1:
		alu = ga.OpXor
	case 0x2:
		alu = ga.OpShl
	case 0x3:
		alu = ga.OpLShr
	case 0x4:
		alu = ga.OpAShr
	case 0x5:
		alu = ga.OpAddC
	case 0x6:
		alu = ga.OpSubC
	case 0x7:
		alu = ga.OpRor
	case 0x8:
		// TST: AND without writeback, flags only.
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpAnd, Dst: "__flags_only", Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0x9:
		alu = ga.OpNeg
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: alu, Dst: rdn, Src1: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0xA:
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: "__flags_only", Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0xB:
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: "__flags_only", Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0xC:
		alu = ga.OpOr
	case 0xD:
		// MULS: documented as taking 1 cycle on Cortex-M0 (early-out multiplier).
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpMul, Dst: rdn, Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0xE:
		alu = ga.OpAnd // BIC modeled as AND with complement; decoder emits the NOT as a separate op.
		return ga.Block{Ops: []ga.Op{
			{Kind: ga.OpKindAlu, Alu: ga.OpNot, Dst: "__tmp", Src1: rm, Width: ga.Width32},
			{Kind: ga.OpKindAlu, Alu: ga.OpAnd, Dst: rdn, Src1: rdn, Src2: "__tmp", Width: ga.Width32, SetFlags: true},
		}, Cost: ga.Uniform(1), Len: 2}, nil
	case 0xF:
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpNot, Dst: rdn, Src1: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	}
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: alu, Dst: rdn, Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
}

func (d *Decoder) decodeShiftImm(ins uint16, pc uint32) (ga.Block, error) {
	op := (ins >> 11) & 0x3
	imm := uint64((ins >> 6) & 0x1F)
	rm := gpReg((ins >> 3) & 0x7)
	rd := gpReg(ins & 0x7)
	var alu ga.AluOp
	switch op {
	case 0:
		alu = ga.OpShl
	case 1:
		alu = ga.OpLShr
	case 2:
		alu = ga.OpAShr
	default:
		return ga.Block{}, decoder.Unimplemented(uint32(ins), pc)
	}
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: alu, Dst: rd, Src1: rm, Imm: imm, UseImm: true, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
}

func (d *Decoder) decodeAddSub3(ins uint16, pc uint32) (ga.Block, error) {
	isImm := ins&0x0400 != 0
	isSub := ins&0x0200 != 0
	rn := gpReg((ins >> 3) & 0x7)
	rd := gpReg(ins & 0x7)
	field := (ins >> 6) & 0x7
	op := ga.OpAdd
	if isSub {
		op = ga.OpSub
	}
	gop := ga.Op{Kind: ga.OpKindAlu, Alu: op, Dst: rd, Src1: rn, Width: ga.Width32, SetFlags: true}
	if isImm {
		gop.Imm = uint64(field)
		gop.UseImm = true
	} else {
		gop.Src2 = gpReg(field)
	}
	return ga.Block{Ops: []ga.Op{gop}, Cost: ga.Uniform(1), Len: 2}, nil
}

func (d *Decoder) decodeImm8(ins uint16, pc uint32) (ga.Block, error) {
	op := (ins >> 11) & 0x3
	rdn := gpReg((ins >> 8) & 0x7)
	imm := uint64(ins & 0xFF)
	switch op {
	case 0: // MOV
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindMove, Dst: rdn, Imm: imm, UseImm: true, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 1: // CMP
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: "__flags_only", Src1: rdn, Imm: imm, UseImm: true, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 2: // ADD
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: rdn, Src1: rdn, Imm: imm, UseImm: true, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 3: // SUB
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: rdn, Src1: rdn, Imm: imm, UseImm: true, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	}
	return ga.Block{}, decoder.Unimplemented(uint32(ins), pc)
}

func (d *Decoder) decodeHiReg(ins uint16, pc uint32) (ga.Block, error) {
	opc := (ins >> 8) & 0x3
	rm := gpReg((ins >> 3) & 0xF)
	rdn := gpReg((ins & 0x7) | ((ins >> 4) & 0x8))
	switch opc {
	case 0: // ADD
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: rdn, Src1: rdn, Src2: rm, Width: ga.Width32}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 1: // CMP
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: "__flags_only", Src1: rdn, Src2: rm, Width: ga.Width32, SetFlags: true}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 2: // MOV
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindMove, Dst: rdn, Src1: rm, Width: ga.Width32}}, Cost: ga.Uniform(1), Len: 2}, nil
	case 3: // BX / BLX
		link := ins&0x80 != 0
		if link {
			return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindCall, Target: ga.RegTarget(rm), Link: true}}, Cost: ga.Uniform(3), Len: 2}, nil
		}
		return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindIndirect, Target: ga.RegTarget(rm), IsReturn: rm == ga.RegLR}}, Cost: ga.Uniform(3), Len: 2}, nil
	}
	return ga.Block{}, decoder.Unimplemented(uint32(ins), pc)
}

func (d *Decoder) decodeLdrLiteral(ins uint16, pc uint32) (ga.Block, error) {
	rt := gpReg((ins >> 8) & 0x7)
	imm := int32(ins&0xFF) * 4
	base := (pc &^ 3) + 4
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindLoad, Dst: rt, AddrReg: ga.RegPC, AddrImm: imm + int32(base-pc), MemWidth: ga.Width32}}, Cost: ga.Uniform(2), Len: 2}, nil
}

func (d *Decoder) decodeLoadStore(ins uint16, pc uint32) (ga.Block, error) {
	rt := gpReg(ins & 0x7)
	rn := gpReg((ins >> 3) & 0x7)
	isRegOffset := ins&0xF000 == 0x5000
	store := false
	var width ga.Width
	var immShift uint
	opBits := (ins >> 11) & 0x3
	if isRegOffset {
		rm := gpReg((ins >> 6) & 0x7)
		sub := (ins >> 9) & 0x7
		signExt := false
		switch sub {
		case 0: // STR
			store, width = true, ga.Width32
		case 1: // STRH
			store, width = true, ga.Width16
		case 2: // STRB
			store, width = true, ga.Width8
		case 3: // LDRSB
			width, signExt = ga.Width8, true
		case 4: // LDR
			width = ga.Width32
		case 5: // LDRH
			width = ga.Width16
		case 6: // LDRB
			width = ga.Width8
		case 7: // LDRSH
			width, signExt = ga.Width16, true
		}
		op := ga.Op{AddrReg: rn, MemWidth: width, SignExtendLoad: signExt}
		op.Src2 = rm
		if store {
			op.Kind = ga.OpKindStore
			op.Src1 = rt
		} else {
			op.Kind = ga.OpKindLoad
			op.Dst = rt
		}
		// Register-offset addressing: synthesize rn+rm into AddrReg via a
		// preceding ALU op into a scratch register, since GA's memory ops
		// take a single base register plus immediate displacement.
		return ga.Block{Ops: []ga.Op{
			{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: "__addr", Src1: rn, Src2: rm, Width: ga.Width32},
			withBase(op, "__addr"),
		}, Cost: ga.Uniform(2), Len: 2}, nil
	}
	switch opBits {
	case 0:
		store, width, immShift = true, ga.Width32, 2
	case 1:
		store, width, immShift = false, ga.Width32, 2
	}
	imm := int32((ins>>6)&0x1F) << immShift
	op := ga.Op{AddrReg: rn, AddrImm: imm, MemWidth: width}
	if store {
		op.Kind = ga.OpKindStore
		op.Src1 = rt
	} else {
		op.Kind = ga.OpKindLoad
		op.Dst = rt
	}
	return ga.Block{Ops: []ga.Op{op}, Cost: ga.Uniform(2), Len: 2}, nil
}

func withBase(op ga.Op, base ga.Reg) ga.Op {
	op.AddrReg = base
	op.AddrImm = 0
	return op
}

func (d *Decoder) decodeSPRelative(ins uint16, pc uint32) (ga.Block, error) {
	store := ins&0x0800 == 0
	rt := gpReg((ins >> 8) & 0x7)
	imm := int32(ins&0xFF) << 2
	op := ga.Op{AddrReg: ga.RegSP, AddrImm: imm, MemWidth: ga.Width32}
	if store {
		op.Kind = ga.OpKindStore
		op.Src1 = rt
	} else {
		op.Kind = ga.OpKindLoad
		op.Dst = rt
	}
	return ga.Block{Ops: []ga.Op{op}, Cost: ga.Uniform(2), Len: 2}, nil
}

func (d *Decoder) decodeAddPCSP(ins uint16, pc uint32) (ga.Block, error) {
	fromSP := ins&0x0800 != 0
	rd := gpReg((ins >> 8) & 0x7)
	imm := uint64(ins&0xFF) << 2
	src := ga.RegPC
	if fromSP {
		src = ga.RegSP
	}
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: rd, Src1: src, Imm: imm, UseImm: true, Width: ga.Width32}}, Cost: ga.Uniform(1), Len: 2}, nil
}

func (d *Decoder) decodeAddSubSP(ins uint16, pc uint32) (ga.Block, error) {
	isSub := ins&0x80 != 0
	imm := uint64(ins&0x7F) << 2
	op := ga.OpAdd
	if isSub {
		op = ga.OpSub
	}
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindAlu, Alu: op, Dst: ga.RegSP, Src1: ga.RegSP, Imm: imm, UseImm: true, Width: ga.Width32}}, Cost: ga.Uniform(1), Len: 2}, nil
}

func (d *Decoder) decodePushPop(ins uint16, pc uint32) (ga.Block, error) {
	isPop := ins&0x0800 != 0
	withLRorPC := ins&0x0100 != 0
	list := ins & 0xFF
	var ops []ga.Op
	count := 0
	if isPop {
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				ops = append(ops, ga.Op{Kind: ga.OpKindLoad, Dst: gpReg(uint16(i)), AddrReg: ga.RegSP, MemWidth: ga.Width32})
				ops = append(ops, ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: ga.RegSP, Src1: ga.RegSP, Imm: 4, UseImm: true, Width: ga.Width32})
				count++
			}
		}
		if withLRorPC {
			ops = append(ops, ga.Op{Kind: ga.OpKindLoad, Dst: ga.RegPC, AddrReg: ga.RegSP, MemWidth: ga.Width32})
			ops = append(ops, ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: ga.RegSP, Src1: ga.RegSP, Imm: 4, UseImm: true, Width: ga.Width32})
			ops = append(ops, ga.Op{Kind: ga.OpKindReturn})
			count++
		}
	} else {
		if withLRorPC {
			ops = append(ops, ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: ga.RegSP, Src1: ga.RegSP, Imm: 4, UseImm: true, Width: ga.Width32})
			ops = append(ops, ga.Op{Kind: ga.OpKindStore, Src1: ga.RegLR, AddrReg: ga.RegSP, MemWidth: ga.Width32})
			count++
		}
		for i := 7; i >= 0; i-- {
			if list&(1<<uint(i)) != 0 {
				ops = append(ops, ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpSub, Dst: ga.RegSP, Src1: ga.RegSP, Imm: 4, UseImm: true, Width: ga.Width32})
				ops = append(ops, ga.Op{Kind: ga.OpKindStore, Src1: gpReg(uint16(i)), AddrReg: ga.RegSP, MemWidth: ga.Width32})
				count++
			}
		}
	}
	return ga.Block{Ops: ops, Cost: ga.Uniform(uint32(1 + count)), Len: 2}, nil
}

func (d *Decoder) decodeCondBranch(ins uint16, pc uint32) (ga.Block, error) {
	condBits := (ins >> 8) & 0xF
	if condBits == 0xF { // SVC, not modeled
		return ga.Block{}, decoder.Unimplemented(uint32(ins), pc)
	}
	offset := int32(int8(ins&0xFF)) * 2
	target := ga.ConcreteTarget(uint32(int32(pc+4) + offset))
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindBranch, Cond: ga.CondCode(condBits), Target: target}}, Cost: ga.BranchDependent(3, 1), Len: 2}, nil
}

func (d *Decoder) decodeUncondBranch(ins uint16, pc uint32) (ga.Block, error) {
	raw := ins & 0x7FF
	offset := int32(raw) << 1
	if raw&0x400 != 0 {
		offset -= 1 << 11
	}
	target := ga.ConcreteTarget(uint32(int32(pc+4) + offset))
	return ga.Block{Ops: []ga.Op{{Kind: ga.OpKindBranch, Cond: ga.CondAL, Target: target}}, Cost: ga.Uniform(3), Len: 2}, nil
}
