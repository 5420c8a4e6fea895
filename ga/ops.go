package ga

// Reg names an architectural register file slot: general-purpose registers,
// ARM condition flags, or an ISA's special registers (PC/SP/LR/xPSR). The
// concrete set of valid names is architecture-specific and owned by
// state.Registers; GA itself only ever carries opaque names.
type Reg string

// Well-known special register names shared across every supported ISA's
// decoder. Flag names (N, Z, C, V) are ARM's architectural flags; RV32I has
// none, and its branch decoder uses them only as scratch, set by a
// flags-only Sub ahead of each conditional branch.
const (
	RegPC   Reg = "pc"
	RegSP   Reg = "sp"
	RegLR   Reg = "lr"
	RegXPSR Reg = "xpsr"
	FlagN   Reg = "n"
	FlagZ   Reg = "z"
	FlagC   Reg = "c"
	FlagV   Reg = "v"

	// RegZero is RV32I's x0, hardwired to the constant 0: reads always see
	// 0 and writes are discarded (state.Registers enforces both halves).
	// ARM decoders never emit this name.
	RegZero Reg = "x0"
)

// AluOp enumerates the arithmetic/logical kinds BinOp and UnOp carry.
type AluOp uint8

const (
	OpAdd AluOp = iota
	OpAddC       // add with carry-in
	OpSub
	OpSubC // subtract with borrow-in
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpNot
	OpNeg
	OpShl
	OpLShr // logical shift right
	OpAShr // arithmetic shift right
	OpRol
	OpRor
	OpSltS // Dst = (Src1 < Src2) ? 1 : 0, signed (RV32I SLT/SLTI)
	OpSltU // Dst = (Src1 < Src2) ? 1 : 0, unsigned (RV32I SLTU/SLTIU)
)

// CondCode enumerates the ARM-style condition codes a conditional branch or
// conditional data-processing op can test. The RV32I branch decoder uses
// them too, testing the flags of a flags-only Sub of the two operands.
type CondCode uint8

const (
	CondEQ CondCode = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
)

// Target is a branch or call destination: either a concrete address fixed
// at decode time, or a register whose value (possibly symbolic) is read at
// execution time.
type Target struct {
	Concrete bool
	Addr     uint32
	Reg      Reg
}

// ConcreteTarget builds a Target for a statically-known destination address
// (the common case: PC-relative branches, BL, JAL).
func ConcreteTarget(addr uint32) Target { return Target{Concrete: true, Addr: addr} }

// RegTarget builds a Target for an indirect destination held in a register
// (BX/BLX/MOV PC, JALR).
func RegTarget(r Reg) Target { return Target{Reg: r} }

// Op is one General Assembly operation. Decoders build a Block of these per
// native instruction; the executor interprets them strictly in sequence.
// Every field not relevant to Kind is the type's zero value; decoders never
// populate fields outside their Kind's documented shape.
type Op struct {
	Kind OpKind

	// Register-to-register / immediate operations.
	Dst, Src1, Src2 Reg
	Alu             AluOp
	Imm             uint64
	UseImm          bool
	Width           Width

	// Flag bookkeeping: which flags this op defines, and whether it reads
	// carry-in (ADC/SBC) or tests a condition (conditional branch/select).
	SetFlags bool
	Cond     CondCode

	// Memory access. SignExtendLoad selects sign- vs zero-extension of a
	// narrower-than-register-width Load result (LDRSB/LDRSH, RV32I LB/LH
	// vs LDRB/LDRH, RV32I LBU/LHU); Store never consults it.
	AddrReg        Reg
	AddrImm        int32 // signed displacement added to AddrReg
	MemWidth       Width
	SignExtendLoad bool

	// Control flow.
	Target    Target
	Link      bool // true for call-style branches: save return address to LR/RA
	IsReturn  bool
	Intrinsic string // symbol name for OpKindIntrinsic
}

// OpKind tags the variant of Op, mirroring the abstract inventory in §3:
// arithmetic with/without carry, logical, shifts/rotates with C-flag
// semantics, flag computation, extend/truncate, load/store, branches
// (conditional/unconditional/indirect), call/return, intrinsic, halt.
type OpKind uint8

const (
	OpKindAlu        OpKind = iota // Dst = Src1 <Alu> (Src2 | Imm)
	OpKindMove                     // Dst = Src1 | Imm
	OpKindExtend                   // Dst = sext/zext(Src1) to Width; Alu selects OpAdd=zext, OpSub=sext by convention
	OpKindTruncate                 // Dst = Src1 truncated to Width
	OpKindFlags                    // recompute flags from the last ALU result; decoder-emitted when SetFlags alone needs a standalone op
	OpKindLoad                     // Dst = mem[AddrReg + AddrImm], MemWidth bytes
	OpKindStore                    // mem[AddrReg + AddrImm] = Src1, MemWidth bytes
	OpKindBranch                   // conditional or unconditional; see Cond/Target
	OpKindIndirect                 // branch to Target.Reg (BX/JALR-style)
	OpKindCall                     // push return address, branch to Target
	OpKindReturn                   // pop return address, branch to it
	OpKindIntrinsic                // dispatch to a named runtime hook
	OpKindHalt                     // terminate the path (undefined instruction reached, etc.)
)

// Block is the ordered sequence of GA operations produced for one native
// instruction, plus the decoder's cycle-cost annotation for it (§3 "GA
// block"). When the instruction's cost is branch-dependent (§4.D), Cost has
// Split set and carries Taken/NotTaken; otherwise Cost.Cost alone is charged
// and Cost's Taken/NotTaken fields are zero.
type Block struct {
	Ops  []Op
	Cost CycleCost
	// Len is the encoded length in bytes of the native instruction this
	// block was decoded from, used to compute the fall-through PC.
	Len uint8
}

// CycleCost is the decoder's declared cost for one instruction. When Split
// is false, Cost applies uniformly regardless of outcome (§3: "already
// resolved to a single number by the decoder"). When Split is true, the
// executor must charge Taken or NotTaken depending on which branch
// successor a forked or resolved state actually takes (§4.D: "the decoder
// attaches separate costs to each successor edge").
type CycleCost struct {
	Split          bool
	Cost           uint32
	Taken, NotTaken uint32
}

// Uniform builds a CycleCost that charges the same cost regardless of
// control flow outcome.
func Uniform(cost uint32) CycleCost { return CycleCost{Cost: cost} }

// BranchDependent builds a CycleCost for an instruction whose cost differs
// by branch outcome.
func BranchDependent(taken, notTaken uint32) CycleCost {
	return CycleCost{Split: true, Taken: taken, NotTaken: notTaken}
}

// Charge returns the cycles to add for this block given whether the branch
// (if any) it encodes was taken.
func (c CycleCost) Charge(taken bool) uint32 {
	if !c.Split {
		return c.Cost
	}
	if taken {
		return c.Taken
	}
	return c.NotTaken
}
