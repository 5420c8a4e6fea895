package exec

import (
	"symex/ga"
	"symex/smt"
	"symex/state"
)

// evalCond evaluates cond against the current N/Z/C/V flags. When every
// flag it depends on is concrete, it also returns the concrete outcome so
// execBranch can skip a solver round trip entirely; condExpr is always
// populated (even in the concrete case) so callers that already decided
// to Fork don't need a second code path.
func evalCond(g smt.Gateway, s *state.State, cond ga.CondCode) (condExpr smt.Expr, concreteTaken bool, isConcrete bool) {
	n := flagVal(s, ga.FlagN)
	z := flagVal(s, ga.FlagZ)
	c := flagVal(s, ga.FlagC)
	v := flagVal(s, ga.FlagV)

	bit := func(val ga.Value) (smt.Expr, bool, bool) {
		if !val.IsSymbolic() {
			return boolLitExpr(g, val.Conc != 0), val.Conc != 0, true
		}
		return g.Eq(exprOf(g, val), g.Literal(1, 1)), false, false
	}
	nE, nC, nOK := bit(n)
	zE, zC, zOK := bit(z)
	cE, cC, cOK := bit(c)
	vE, vC, vOK := bit(v)

	switch cond {
	case ga.CondEQ:
		return zE, zC, zOK
	case ga.CondNE:
		return g.BoolNot(zE), !zC, zOK
	case ga.CondCS:
		return cE, cC, cOK
	case ga.CondCC:
		return g.BoolNot(cE), !cC, cOK
	case ga.CondMI:
		return nE, nC, nOK
	case ga.CondPL:
		return g.BoolNot(nE), !nC, nOK
	case ga.CondVS:
		return vE, vC, vOK
	case ga.CondVC:
		return g.BoolNot(vE), !vC, vOK
	case ga.CondHI:
		return g.BoolAnd(cE, g.BoolNot(zE)), cC && !zC, cOK && zOK
	case ga.CondLS:
		return g.BoolOr(g.BoolNot(cE), zE), !cC || zC, cOK && zOK
	case ga.CondGE:
		return g.BoolNot(g.Xor(nE, vE)), nC == vC, nOK && vOK
	case ga.CondLT:
		return g.Xor(nE, vE), nC != vC, nOK && vOK
	case ga.CondGT:
		return g.BoolAnd(g.BoolNot(zE), g.BoolNot(g.Xor(nE, vE))), !zC && nC == vC, zOK && nOK && vOK
	case ga.CondLE:
		return g.BoolOr(zE, g.Xor(nE, vE)), zC || nC != vC, zOK && nOK && vOK
	case ga.CondAL:
		return boolLitExpr(g, true), true, true
	}
	return boolLitExpr(g, true), true, true
}

func flagVal(s *state.State, r ga.Reg) ga.Value {
	if s.Regs.Has(r) {
		return s.Regs.Read(r)
	}
	return ga.Concrete(ga.Width1, 0)
}
