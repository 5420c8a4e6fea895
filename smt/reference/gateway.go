package reference

import (
	"context"
	"math/rand"

	"symex/smt"
)

// Gateway is the bundled pure-Go smt.Gateway implementation. It is not
// thread-safe by design (§5): the WCET driver's parallel mode shares one
// instance across its workers behind a mutex wrapper.
type Gateway struct {
	rng    *rand.Rand
	frames [][]*expr

	// MaxExhaustive bounds the total assignment-space size (product of
	// 2^width over free variables) below which Solve falls back to
	// complete brute-force enumeration instead of randomized search.
	MaxExhaustive uint64
	// MaxAttempts bounds the number of randomized candidate assignments
	// tried before a query otherwise outside MaxExhaustive gives up with
	// smt.Unknown.
	MaxAttempts int
}

// New constructs a reference Gateway. seed makes its randomized search
// reproducible: two Gateways built with the same seed, asked the same
// queries in the same order, explore candidates in the same sequence
// (§8 Determinism).
func New(seed int64) *Gateway {
	return &Gateway{
		rng:           rand.New(rand.NewSource(seed)),
		frames:        [][]*expr{{}},
		MaxExhaustive: 1 << 20,
		MaxAttempts:   20000,
	}
}

func (g *Gateway) Backend() smt.Backend { return smt.BackendReference }

func lit(w uint, bits uint64) *expr { return &expr{op: kLit, width: w, bits: maskTo(w, bits)} }

func (g *Gateway) Literal(width uint, bits uint64) smt.Expr { return lit(width, bits) }

func (g *Gateway) Var(name string, width uint) smt.Expr {
	return &expr{op: kVar, width: width, name: name}
}

func bin(op kind, w uint, a, b smt.Expr) *expr {
	return &expr{op: op, width: w, a: asExpr(a), b: asExpr(b)}
}

func (g *Gateway) Add(a, b smt.Expr) smt.Expr  { return bin(kAdd, asExpr(a).width, a, b) }
func (g *Gateway) Sub(a, b smt.Expr) smt.Expr  { return bin(kSub, asExpr(a).width, a, b) }
func (g *Gateway) Mul(a, b smt.Expr) smt.Expr  { return bin(kMul, asExpr(a).width, a, b) }
func (g *Gateway) UDiv(a, b smt.Expr) smt.Expr { return bin(kUDiv, asExpr(a).width, a, b) }
func (g *Gateway) SDiv(a, b smt.Expr) smt.Expr { return bin(kSDiv, asExpr(a).width, a, b) }
func (g *Gateway) URem(a, b smt.Expr) smt.Expr { return bin(kURem, asExpr(a).width, a, b) }
func (g *Gateway) SRem(a, b smt.Expr) smt.Expr { return bin(kSRem, asExpr(a).width, a, b) }
func (g *Gateway) And(a, b smt.Expr) smt.Expr  { return bin(kAnd, asExpr(a).width, a, b) }
func (g *Gateway) Or(a, b smt.Expr) smt.Expr   { return bin(kOr, asExpr(a).width, a, b) }
func (g *Gateway) Xor(a, b smt.Expr) smt.Expr  { return bin(kXor, asExpr(a).width, a, b) }
func (g *Gateway) Shl(a, b smt.Expr) smt.Expr  { return bin(kShl, asExpr(a).width, a, b) }
func (g *Gateway) LShr(a, b smt.Expr) smt.Expr { return bin(kLShr, asExpr(a).width, a, b) }
func (g *Gateway) AShr(a, b smt.Expr) smt.Expr { return bin(kAShr, asExpr(a).width, a, b) }

func (g *Gateway) Not(a smt.Expr) smt.Expr { return &expr{op: kNot, width: asExpr(a).width, a: asExpr(a)} }
func (g *Gateway) Neg(a smt.Expr) smt.Expr { return &expr{op: kNeg, width: asExpr(a).width, a: asExpr(a)} }

func (g *Gateway) Eq(a, b smt.Expr) smt.Expr  { return bin(kEq, 0, a, b) }
func (g *Gateway) Ult(a, b smt.Expr) smt.Expr { return bin(kUlt, 0, a, b) }
func (g *Gateway) Ule(a, b smt.Expr) smt.Expr { return bin(kUle, 0, a, b) }
func (g *Gateway) Slt(a, b smt.Expr) smt.Expr { return bin(kSlt, 0, a, b) }
func (g *Gateway) Sle(a, b smt.Expr) smt.Expr { return bin(kSle, 0, a, b) }

func (g *Gateway) BoolAnd(a, b smt.Expr) smt.Expr { return bin(kBoolAnd, 0, a, b) }
func (g *Gateway) BoolOr(a, b smt.Expr) smt.Expr  { return bin(kBoolOr, 0, a, b) }
func (g *Gateway) BoolNot(a smt.Expr) smt.Expr    { return &expr{op: kBoolNot, a: asExpr(a)} }

func (g *Gateway) IfThenElse(cond, t, f smt.Expr) smt.Expr {
	return &expr{op: kIte, width: asExpr(t).width, a: asExpr(cond), b: asExpr(t), c: asExpr(f)}
}

func (g *Gateway) SignExtend(a smt.Expr, width uint) smt.Expr {
	return &expr{op: kSExt, width: width, a: asExpr(a)}
}

func (g *Gateway) ZeroExtend(a smt.Expr, width uint) smt.Expr {
	return &expr{op: kZExt, width: width, a: asExpr(a)}
}

func (g *Gateway) Extract(a smt.Expr, hi, lo int) smt.Expr {
	return &expr{op: kExtract, width: uint(hi - lo + 1), a: asExpr(a), bits: uint64(hi)<<32 | uint64(uint32(lo))}
}

func (g *Gateway) Concat(hi, lo smt.Expr) smt.Expr {
	return &expr{op: kConcat, width: asExpr(hi).width + asExpr(lo).width, a: asExpr(hi), b: asExpr(lo)}
}

func (g *Gateway) ArrayConst(name string, indexWidth, elemWidth uint) smt.Expr {
	return &expr{op: kArrayConst, name: name, indexWidth: indexWidth, elemWidth: elemWidth}
}

func (g *Gateway) Select(arr, idx smt.Expr) smt.Expr {
	a := asExpr(arr)
	return &expr{op: kSelect, width: a.elemWidthOf(), a: a, b: asExpr(idx)}
}

func (g *Gateway) Store(arr, idx, val smt.Expr) smt.Expr {
	a := asExpr(arr)
	return &expr{op: kStore, width: 0, a: a, b: asExpr(idx), c: asExpr(val), indexWidth: a.indexWidthOf(), elemWidth: a.elemWidthOf(), name: a.name}
}

// elemWidthOf/indexWidthOf walk a (possibly Store-wrapped) array expression
// back to its defining ArrayConst to recover its element/index widths.
func (e *expr) elemWidthOf() uint {
	n := e
	for n.op == kStore {
		n = n.a
	}
	return n.elemWidth
}

func (e *expr) indexWidthOf() uint {
	n := e
	for n.op == kStore {
		n = n.a
	}
	return n.indexWidth
}

func (g *Gateway) Push() {
	g.frames = append(g.frames, nil)
}

func (g *Gateway) Pop() {
	if len(g.frames) > 1 {
		g.frames = g.frames[:len(g.frames)-1]
	} else {
		g.frames[0] = nil
	}
}

func (g *Gateway) Assert(cond smt.Expr) {
	top := len(g.frames) - 1
	g.frames[top] = append(g.frames[top], asExpr(cond))
}

func (g *Gateway) constraints() []*expr {
	var all []*expr
	for _, f := range g.frames {
		all = append(all, f...)
	}
	return all
}

func (g *Gateway) CheckSat(ctx context.Context, cond smt.Expr) (smt.Sat, error) {
	query := g.constraints()
	if cond != nil {
		query = append(query, asExpr(cond))
	}
	_, sat, err := g.solve(ctx, query)
	return sat, err
}

func (g *Gateway) GetValue(ctx context.Context, target smt.Expr, cond smt.Expr) (uint64, error) {
	query := g.constraints()
	if cond != nil {
		query = append(query, asExpr(cond))
	}
	env, sat, err := g.solve(ctx, query)
	if err != nil {
		return 0, err
	}
	if sat != smt.Satisfiable {
		return 0, smt.SolverUnknown{Query: "GetValue"}
	}
	return evalBV(asExpr(target), env), nil
}

func (g *Gateway) SolutionsFor(ctx context.Context, target smt.Expr, cond smt.Expr, limit int) ([]uint64, error) {
	base := g.constraints()
	if cond != nil {
		base = append(base, asExpr(cond))
	}
	t := asExpr(target)
	var out []uint64
	seen := map[uint64]bool{}
	query := append([]*expr(nil), base...)
	for len(out) < limit {
		env, sat, err := g.solve(ctx, query)
		if err != nil {
			return out, err
		}
		if sat != smt.Satisfiable {
			break
		}
		v := evalBV(t, env)
		if seen[v] {
			// Search heuristics can occasionally rediscover a value already
			// excluded below before the new disequality has propagated;
			// treat that as exhaustion rather than looping forever.
			break
		}
		seen[v] = true
		out = append(out, v)
		query = append(query[:len(base):len(base)], neq(t, v))
		// Next round must also continue excluding all previously found
		// values, not just the latest.
		for prev := range seen {
			if prev == v {
				continue
			}
			query = append(query, neq(t, prev))
		}
	}
	return out, nil
}

func neq(t *expr, v uint64) *expr {
	return &expr{op: kBoolNot, a: &expr{op: kEq, a: t, b: lit(t.width, v)}}
}

func maskTo(w uint, bits uint64) uint64 {
	if w == 0 || w >= 64 {
		return bits
	}
	return bits & ((uint64(1) << w) - 1)
}
