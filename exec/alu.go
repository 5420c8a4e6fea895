package exec

import (
	"symex/ga"
	"symex/smt"
)

// binValue computes the result of a (non-flag) ALU operation. Both
// operands concrete takes the fast path through native Go arithmetic;
// either operand symbolic lifts the whole computation into the solver
// gateway's expression builder. carryIn is only consulted for AddC/SubC.
func binValue(g smt.Gateway, alu ga.AluOp, a, b ga.Value, width ga.Width, carryIn ga.Value) ga.Value {
	needsCarry := alu == ga.OpAddC || alu == ga.OpSubC
	if !a.IsSymbolic() && !b.IsSymbolic() && (!needsCarry || !carryIn.IsSymbolic()) {
		return ga.Concrete(width, concreteAlu(alu, a.Conc, b.Conc, width, carryIn.Conc))
	}
	ea, eb := exprOf(g, a), exprOf(g, b)
	switch alu {
	case ga.OpAdd:
		return ga.Symbolic(width, g.Add(ea, eb))
	case ga.OpAddC:
		return ga.Symbolic(width, g.Add(g.Add(ea, eb), exprOf(g, carryIn)))
	case ga.OpSub:
		return ga.Symbolic(width, g.Sub(ea, eb))
	case ga.OpSubC:
		return ga.Symbolic(width, g.Sub(g.Sub(ea, eb), g.Sub(g.Literal(uint(width), 1), exprOf(g, carryIn))))
	case ga.OpMul:
		return ga.Symbolic(width, g.Mul(ea, eb))
	case ga.OpUDiv:
		return ga.Symbolic(width, g.UDiv(ea, eb))
	case ga.OpSDiv:
		return ga.Symbolic(width, g.SDiv(ea, eb))
	case ga.OpURem:
		return ga.Symbolic(width, g.URem(ea, eb))
	case ga.OpSRem:
		return ga.Symbolic(width, g.SRem(ea, eb))
	case ga.OpAnd:
		return ga.Symbolic(width, g.And(ea, eb))
	case ga.OpOr:
		return ga.Symbolic(width, g.Or(ea, eb))
	case ga.OpXor:
		return ga.Symbolic(width, g.Xor(ea, eb))
	case ga.OpNot:
		return ga.Symbolic(width, g.Not(ea))
	case ga.OpNeg:
		return ga.Symbolic(width, g.Neg(ea))
	case ga.OpShl:
		return ga.Symbolic(width, g.Shl(ea, eb))
	case ga.OpLShr:
		return ga.Symbolic(width, g.LShr(ea, eb))
	case ga.OpAShr:
		return ga.Symbolic(width, g.AShr(ea, eb))
	case ga.OpRol:
		return ga.Symbolic(width, rol(g, ea, eb, width))
	case ga.OpRor:
		return ga.Symbolic(width, ror(g, ea, eb, width))
	case ga.OpSltS:
		return ga.Symbolic(width, g.IfThenElse(g.Slt(ea, eb), g.Literal(uint(width), 1), g.Literal(uint(width), 0)))
	case ga.OpSltU:
		return ga.Symbolic(width, g.IfThenElse(g.Ult(ea, eb), g.Literal(uint(width), 1), g.Literal(uint(width), 0)))
	}
	panic("exec: unhandled AluOp")
}

func rol(g smt.Gateway, a, b smt.Expr, width ga.Width) smt.Expr {
	w := uint(width)
	left := g.Shl(a, b)
	right := g.LShr(a, g.Sub(g.Literal(w, uint64(w)), b))
	return g.Or(left, right)
}

func ror(g smt.Gateway, a, b smt.Expr, width ga.Width) smt.Expr {
	w := uint(width)
	right := g.LShr(a, b)
	left := g.Shl(a, g.Sub(g.Literal(w, uint64(w)), b))
	return g.Or(left, right)
}

func concreteAlu(alu ga.AluOp, a, b uint64, width ga.Width, carryIn uint64) uint64 {
	w := uint(width)
	switch alu {
	case ga.OpAdd:
		return a + b
	case ga.OpAddC:
		return a + b + carryIn
	case ga.OpSub:
		return a - b
	case ga.OpSubC:
		return a - b - (1 - carryIn)
	case ga.OpMul:
		return a * b
	case ga.OpUDiv:
		return a / b
	case ga.OpSDiv:
		return uint64(signed(a, w) / signed(b, w))
	case ga.OpURem:
		return a % b
	case ga.OpSRem:
		return uint64(signed(a, w) % signed(b, w))
	case ga.OpAnd:
		return a & b
	case ga.OpOr:
		return a | b
	case ga.OpXor:
		return a ^ b
	case ga.OpNot:
		return ^a
	case ga.OpNeg:
		return -a
	case ga.OpShl:
		if b >= uint64(w) {
			return 0
		}
		return a << b
	case ga.OpLShr:
		if b >= uint64(w) {
			return 0
		}
		return a >> b
	case ga.OpAShr:
		if b >= uint64(w) {
			b = uint64(w) - 1
		}
		return uint64(signed(a, w) >> b)
	case ga.OpRol:
		b %= uint64(w)
		return (a << b) | (a >> (uint64(w) - b))
	case ga.OpRor:
		b %= uint64(w)
		return (a >> b) | (a << (uint64(w) - b))
	case ga.OpSltS:
		if signed(a, w) < signed(b, w) {
			return 1
		}
		return 0
	case ga.OpSltU:
		if a < b {
			return 1
		}
		return 0
	}
	panic("exec: unhandled concrete AluOp")
}

func signed(bits uint64, w uint) int64 {
	if w == 0 || w >= 64 {
		return int64(bits)
	}
	signBit := uint64(1) << (w - 1)
	if bits&signBit != 0 {
		return int64(bits | (^uint64(0) << w))
	}
	return int64(bits)
}

func exprOf(g smt.Gateway, v ga.Value) smt.Expr {
	if v.IsSymbolic() {
		return v.Sym
	}
	return g.Literal(uint(v.Width), v.Conc)
}

// flagsFor computes N and Z for any result, and C and V for the Add/Sub
// family only (§3 "flag computation"). For every other ALU op (And/Or/Xor,
// shifts, rotates, ...) it returns zero-width C and V, and the caller leaves
// those flags unchanged from their prior value. A concrete result yields
// concrete N and Z.
func flagsFor(g smt.Gateway, alu ga.AluOp, a, b, result ga.Value, width ga.Width) (n, z, c, v ga.Value) {
	w := uint(width)
	if !result.IsSymbolic() {
		z = boolConst(result.Conc == 0)
		n = boolConst(result.Conc&(uint64(1)<<(w-1)) != 0)
	} else {
		z = boolVal(g, eqZero(g, result, width))
		n = boolVal(g, signBitSet(g, result, width))
	}

	switch alu {
	case ga.OpAdd, ga.OpAddC:
		if !a.IsSymbolic() && !b.IsSymbolic() {
			sum := a.Conc + b.Conc
			carry := sum>>w != 0 || (w == 64 && sum < a.Conc)
			c = boolConst(carry)
			v = boolConst(overflowAdd(a.Conc, b.Conc, w))
			return
		}
		ea, eb := exprOf(g, a), exprOf(g, b)
		wide := g.Add(g.ZeroExtend(ea, w+1), g.ZeroExtend(eb, w+1))
		c = ga.Symbolic(ga.Width1, g.Extract(wide, int(w), int(w)))
		v = boolVal(g, overflowAddExpr(g, a, b, result, width))
		return
	case ga.OpSub, ga.OpSubC:
		if !a.IsSymbolic() && !b.IsSymbolic() {
			c = boolConst(a.Conc >= b.Conc)
			v = boolConst(overflowSub(a.Conc, b.Conc, w))
			return
		}
		c = boolVal(g, g.BoolNot(g.Ult(exprOf(g, a), exprOf(g, b))))
		v = boolVal(g, overflowSubExpr(g, a, b, result, width))
		return
	default:
		return n, z, ga.Value{}, ga.Value{}
	}
}

func eqZero(g smt.Gateway, v ga.Value, width ga.Width) smt.Expr {
	return g.Eq(exprOf(g, v), g.Literal(uint(width), 0))
}

func signBitSet(g smt.Gateway, v ga.Value, width ga.Width) smt.Expr {
	if !v.IsSymbolic() {
		return boolLitExpr(g, v.Conc&(uint64(1)<<(uint(width)-1)) != 0)
	}
	top := int(width) - 1
	return g.Eq(g.Extract(exprOf(g, v), top, top), g.Literal(1, 1))
}

func boolLitExpr(g smt.Gateway, b bool) smt.Expr {
	if b {
		return g.Literal(1, 1)
	}
	return g.Literal(1, 0)
}

func boolConst(b bool) ga.Value {
	if b {
		return ga.Concrete(ga.Width1, 1)
	}
	return ga.Concrete(ga.Width1, 0)
}

func boolVal(g smt.Gateway, cond smt.Expr) ga.Value {
	return ga.Symbolic(ga.Width1, g.IfThenElse(cond, g.Literal(1, 1), g.Literal(1, 0)))
}

func overflowAdd(a, b uint64, w uint) bool {
	sa, sb := signed(a, w), signed(b, w)
	sum := sa + sb
	max := int64(1)<<(w-1) - 1
	min := -(int64(1) << (w - 1))
	return sum > max || sum < min
}

func overflowSub(a, b uint64, w uint) bool {
	sa, sb := signed(a, w), signed(b, w)
	diff := sa - sb
	max := int64(1)<<(w-1) - 1
	min := -(int64(1) << (w - 1))
	return diff > max || diff < min
}

func overflowAddExpr(g smt.Gateway, a, b, result ga.Value, width ga.Width) smt.Expr {
	signA := signBitSet(g, a, width)
	signB := signBitSet(g, b, width)
	signR := signBitSet(g, result, width)
	sameSignOperands := g.BoolNot(g.BoolOr(g.BoolAnd(signA, g.BoolNot(signB)), g.BoolAnd(g.BoolNot(signA), signB)))
	differentFromResult := g.BoolOr(g.BoolAnd(signA, g.BoolNot(signR)), g.BoolAnd(g.BoolNot(signA), signR))
	return g.BoolAnd(sameSignOperands, differentFromResult)
}

func overflowSubExpr(g smt.Gateway, a, b, result ga.Value, width ga.Width) smt.Expr {
	signA := signBitSet(g, a, width)
	signB := signBitSet(g, b, width)
	signR := signBitSet(g, result, width)
	differentSignOperands := g.BoolOr(g.BoolAnd(signA, g.BoolNot(signB)), g.BoolAnd(g.BoolNot(signA), signB))
	differentFromA := g.BoolOr(g.BoolAnd(signA, g.BoolNot(signR)), g.BoolAnd(g.BoolNot(signA), signR))
	return g.BoolAnd(differentSignOperands, differentFromA)
}
