// Package rv32i decodes the RV32I base integer instruction set into GA
// blocks. The cost model is trivial by design (§4.D: "single-cycle
// non-pipelined: one cycle per instruction") since the reference core this
// analysis targets (informally, a Hippomenes-class soft core) has no
// pipeline to stall or flush.
package rv32i

import (
	"encoding/binary"

	"symex/decode/decoder"
	"symex/ga"
)

type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Arch() string { return "rv32i" }

func xReg(n uint32) ga.Reg {
	if n == 0 {
		return "x0"
	}
	return ga.Reg(regName(n))
}

func regName(n uint32) string {
	digits := [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}
	if n < 10 {
		return "x" + string(digits[n])
	}
	return "x" + string(digits[n/10]) + string(digits[n%10])
}

func (d *Decoder) Decode(img decoder.Image, pc uint32) (ga.Block, error) {
	raw, err := img.ReadCode(pc, 4)
	if err != nil {
		return ga.Block{}, decoder.Truncated(pc, err)
	}
	ins := binary.LittleEndian.Uint32(raw)
	opcode := ins & 0x7F
	rd := xReg((ins >> 7) & 0x1F)
	funct3 := (ins >> 12) & 0x7
	rs1 := xReg((ins >> 15) & 0x1F)
	rs2 := xReg((ins >> 20) & 0x1F)
	funct7 := (ins >> 25) & 0x7F

	switch opcode {
	case 0x37: // LUI
		imm := ins & 0xFFFFF000
		return block1(ga.Op{Kind: ga.OpKindMove, Dst: rd, Imm: uint64(imm), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x17: // AUIPC
		imm := ins & 0xFFFFF000
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: rd, Src1: ga.RegPC, Imm: uint64(imm), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x6F: // JAL
		imm := decodeJImm(ins)
		target := ga.ConcreteTarget(uint32(int32(pc) + imm))
		if rd == ga.RegZero { // j: plain jump, no link
			return block1(ga.Op{Kind: ga.OpKindBranch, Cond: ga.CondAL, Target: target}, 1, 4), nil
		}
		return block1(ga.Op{Kind: ga.OpKindCall, Dst: rd, Target: target, Link: true}, 1, 4), nil
	case 0x67: // JALR
		imm := int32(ins) >> 20
		jump := ga.Op{Kind: ga.OpKindCall, Dst: rd, Target: ga.RegTarget("__addr"), Link: true}
		if rd == ga.RegZero { // jr/ret: indirect jump, no link; ret is jalr x0, 0(x1)
			jump = ga.Op{Kind: ga.OpKindIndirect, Target: ga.RegTarget("__addr"), IsReturn: rs1 == "x1"}
		}
		return ga.Block{Ops: []ga.Op{
			{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: "__addr", Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32},
			jump,
		}, Cost: ga.Uniform(1), Len: 4}, nil
	case 0x63: // Branches
		return d.decodeBranch(ins, funct3, rs1, rs2, pc)
	case 0x03: // Loads
		return d.decodeLoad(ins, funct3, rd, rs1)
	case 0x23: // Stores
		return d.decodeStore(ins, funct3, rs1, rs2)
	case 0x13: // OP-IMM
		return d.decodeOpImm(ins, funct3, rd, rs1)
	case 0x33: // OP (register-register)
		return d.decodeOp(funct3, funct7, rd, rs1, rs2)
	default:
		return ga.Block{}, decoder.Unimplemented(opcode, pc)
	}
}

func block1(op ga.Op, cost uint32, length uint8) ga.Block {
	return ga.Block{Ops: []ga.Op{op}, Cost: ga.Uniform(cost), Len: length}
}

func decodeJImm(ins uint32) int32 {
	imm20 := (ins >> 31) & 1
	imm10_1 := (ins >> 21) & 0x3FF
	imm11 := (ins >> 20) & 1
	imm19_12 := (ins >> 12) & 0xFF
	v := (imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1)
	if imm20 != 0 {
		v |= 0xFFE00000
	}
	return int32(v)
}

func decodeBImm(ins uint32) int32 {
	imm12 := (ins >> 31) & 1
	imm10_5 := (ins >> 25) & 0x3F
	imm4_1 := (ins >> 8) & 0xF
	imm11 := (ins >> 7) & 1
	v := (imm12 << 12) | (imm11 << 11) | (imm10_5 << 5) | (imm4_1 << 1)
	if imm12 != 0 {
		v |= 0xFFFFE000
	}
	return int32(v)
}

func (d *Decoder) decodeBranch(ins uint32, funct3 uint32, rs1, rs2 ga.Reg, pc uint32) (ga.Block, error) {
	imm := decodeBImm(ins)
	target := ga.ConcreteTarget(uint32(int32(pc) + imm))
	var alu ga.AluOp
	var cond ga.CondCode
	switch funct3 {
	case 0x0: // BEQ
		alu, cond = ga.OpSub, ga.CondEQ
	case 0x1: // BNE
		alu, cond = ga.OpSub, ga.CondNE
	case 0x4: // BLT
		alu, cond = ga.OpSub, ga.CondLT
	case 0x5: // BGE
		alu, cond = ga.OpSub, ga.CondGE
	case 0x6: // BLTU
		alu, cond = ga.OpSub, ga.CondCC
	case 0x7: // BGEU
		alu, cond = ga.OpSub, ga.CondCS
	default:
		return ga.Block{}, decoder.Unimplemented(ins, pc)
	}
	return ga.Block{Ops: []ga.Op{
		{Kind: ga.OpKindAlu, Alu: alu, Dst: "__flags_only", Src1: rs1, Src2: rs2, Width: ga.Width32, SetFlags: true},
		{Kind: ga.OpKindBranch, Cond: cond, Target: target},
	}, Cost: ga.Uniform(1), Len: 4}, nil
}

func (d *Decoder) decodeLoad(ins uint32, funct3 uint32, rd, rs1 ga.Reg) (ga.Block, error) {
	imm := int32(ins) >> 20
	var width ga.Width
	signExt := false
	switch funct3 {
	case 0x0: // LB
		width, signExt = ga.Width8, true
	case 0x4: // LBU
		width = ga.Width8
	case 0x1: // LH
		width, signExt = ga.Width16, true
	case 0x5: // LHU
		width = ga.Width16
	case 0x2: // LW
		width = ga.Width32
	default:
		return ga.Block{}, decoder.Unimplemented(ins, 0)
	}
	return block1(ga.Op{Kind: ga.OpKindLoad, Dst: rd, AddrReg: rs1, AddrImm: imm, MemWidth: width, SignExtendLoad: signExt}, 1, 4), nil
}

func (d *Decoder) decodeStore(ins uint32, funct3 uint32, rs1, rs2 ga.Reg) (ga.Block, error) {
	imm4_0 := (ins >> 7) & 0x1F
	imm11_5 := (ins >> 25) & 0x7F
	raw := (imm11_5 << 5) | imm4_0
	imm := int32(raw)
	if raw&0x800 != 0 {
		imm |= -(1 << 12)
	}
	var width ga.Width
	switch funct3 {
	case 0x0:
		width = ga.Width8
	case 0x1:
		width = ga.Width16
	case 0x2:
		width = ga.Width32
	default:
		return ga.Block{}, decoder.Unimplemented(ins, 0)
	}
	return block1(ga.Op{Kind: ga.OpKindStore, Src1: rs2, AddrReg: rs1, AddrImm: imm, MemWidth: width}, 1, 4), nil
}

func (d *Decoder) decodeOpImm(ins uint32, funct3 uint32, rd, rs1 ga.Reg) (ga.Block, error) {
	imm := int32(ins) >> 20
	shamt := uint64((ins >> 20) & 0x1F)
	switch funct3 {
	case 0x0: // ADDI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpAdd, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x2: // SLTI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpSltS, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x3: // SLTIU
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpSltU, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x4: // XORI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpXor, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x6: // ORI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpOr, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x7: // ANDI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpAnd, Dst: rd, Src1: rs1, Imm: uint64(uint32(imm)), UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x1: // SLLI
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: ga.OpShl, Dst: rd, Src1: rs1, Imm: shamt, UseImm: true, Width: ga.Width32}, 1, 4), nil
	case 0x5: // SRLI / SRAI
		funct7 := (ins >> 25) & 0x7F
		alu := ga.OpLShr
		if funct7&0x20 != 0 {
			alu = ga.OpAShr
		}
		return block1(ga.Op{Kind: ga.OpKindAlu, Alu: alu, Dst: rd, Src1: rs1, Imm: shamt, UseImm: true, Width: ga.Width32}, 1, 4), nil
	}
	return ga.Block{}, decoder.Unimplemented(ins, 0)
}

func (d *Decoder) decodeOp(funct3, funct7 uint32, rd, rs1, rs2 ga.Reg) (ga.Block, error) {
	var alu ga.AluOp
	switch {
	case funct3 == 0x0 && funct7 == 0x00:
		alu = ga.OpAdd
	case funct3 == 0x0 && funct7 == 0x20:
		alu = ga.OpSub
	case funct3 == 0x1:
		alu = ga.OpShl
	case funct3 == 0x2:
		alu = ga.OpSltS
	case funct3 == 0x3:
		alu = ga.OpSltU
	case funct3 == 0x4:
		alu = ga.OpXor
	case funct3 == 0x5 && funct7 == 0x00:
		alu = ga.OpLShr
	case funct3 == 0x5 && funct7 == 0x20:
		alu = ga.OpAShr
	case funct3 == 0x6:
		alu = ga.OpOr
	case funct3 == 0x7:
		alu = ga.OpAnd
	default:
		return ga.Block{}, decoder.Unimplemented(0, 0)
	}
	op := ga.Op{Kind: ga.OpKindAlu, Alu: alu, Dst: rd, Src1: rs1, Src2: rs2, Width: ga.Width32}
	return block1(op, 1, 4), nil
}
