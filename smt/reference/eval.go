package reference

import "sort"

// env maps free variable names to a concrete assignment. A variable absent
// from env (because it does not appear in any asserted constraint) defaults
// to zero; this only ever affects values nothing downstream constrains.
type env map[string]uint64

func evalBV(n *expr, e env) uint64 {
	switch n.op {
	case kLit:
		return n.bits
	case kVar:
		return e[n.name]
	case kAdd:
		return maskTo(n.width, evalBV(n.a, e)+evalBV(n.b, e))
	case kSub:
		return maskTo(n.width, evalBV(n.a, e)-evalBV(n.b, e))
	case kMul:
		return maskTo(n.width, evalBV(n.a, e)*evalBV(n.b, e))
	case kUDiv:
		b := evalBV(n.b, e)
		if b == 0 {
			return maskTo(n.width, ^uint64(0))
		}
		return maskTo(n.width, evalBV(n.a, e)/b)
	case kSDiv:
		a, b := signed(evalBV(n.a, e), n.a.width), signed(evalBV(n.b, e), n.b.width)
		if b == 0 {
			return maskTo(n.width, ^uint64(0))
		}
		return maskTo(n.width, uint64(a/b))
	case kURem:
		b := evalBV(n.b, e)
		if b == 0 {
			return evalBV(n.a, e)
		}
		return maskTo(n.width, evalBV(n.a, e)%b)
	case kSRem:
		a, b := signed(evalBV(n.a, e), n.a.width), signed(evalBV(n.b, e), n.b.width)
		if b == 0 {
			return evalBV(n.a, e)
		}
		return maskTo(n.width, uint64(a%b))
	case kAnd:
		return maskTo(n.width, evalBV(n.a, e)&evalBV(n.b, e))
	case kOr:
		return maskTo(n.width, evalBV(n.a, e)|evalBV(n.b, e))
	case kXor:
		return maskTo(n.width, evalBV(n.a, e)^evalBV(n.b, e))
	case kNot:
		return maskTo(n.width, ^evalBV(n.a, e))
	case kNeg:
		return maskTo(n.width, -evalBV(n.a, e))
	case kShl:
		return maskTo(n.width, evalBV(n.a, e)<<evalShiftAmount(n, e))
	case kLShr:
		return maskTo(n.width, evalBV(n.a, e)>>evalShiftAmount(n, e))
	case kAShr:
		a := signed(evalBV(n.a, e), n.a.width)
		return maskTo(n.width, uint64(a>>evalShiftAmount(n, e)))
	case kEq:
		if evalBV(n.a, e) == evalBV(n.b, e) {
			return 1
		}
		return 0
	case kUlt:
		if evalBV(n.a, e) < evalBV(n.b, e) {
			return 1
		}
		return 0
	case kUle:
		if evalBV(n.a, e) <= evalBV(n.b, e) {
			return 1
		}
		return 0
	case kSlt:
		if signed(evalBV(n.a, e), n.a.width) < signed(evalBV(n.b, e), n.b.width) {
			return 1
		}
		return 0
	case kSle:
		if signed(evalBV(n.a, e), n.a.width) <= signed(evalBV(n.b, e), n.b.width) {
			return 1
		}
		return 0
	case kBoolAnd:
		if evalBV(n.a, e) != 0 && evalBV(n.b, e) != 0 {
			return 1
		}
		return 0
	case kBoolOr:
		if evalBV(n.a, e) != 0 || evalBV(n.b, e) != 0 {
			return 1
		}
		return 0
	case kBoolNot:
		if evalBV(n.a, e) == 0 {
			return 1
		}
		return 0
	case kIte:
		if evalBV(n.a, e) != 0 {
			return evalBV(n.b, e)
		}
		return evalBV(n.c, e)
	case kSExt:
		v := evalBV(n.a, e)
		return maskTo(n.width, uint64(signed(v, n.a.width)))
	case kZExt:
		return evalBV(n.a, e)
	case kExtract:
		hi, lo := int(n.bits>>32), int(int32(uint32(n.bits)))
		v := evalBV(n.a, e)
		return maskTo(uint(hi-lo+1), v>>uint(lo))
	case kConcat:
		return (evalBV(n.a, e) << n.b.width) | evalBV(n.b, e)
	case kSelect:
		return evalSelect(n.a, evalBV(n.b, e), e)
	case kArrayConst:
		panic("smt/reference: array-typed expression evaluated as a bit-vector")
	case kStore:
		panic("smt/reference: array-typed expression evaluated as a bit-vector")
	}
	panic("smt/reference: unhandled op")
}

// evalShiftAmount clamps a symbolic shift amount to the shiftee's width,
// matching GA's "shift-by-width behavior defined" contract (§4.A): a shift
// by >= width yields the all-zero (or all-sign) result rather than Go's
// undefined-for-large-shift behavior.
func evalShiftAmount(n *expr, e env) uint64 {
	amt := evalBV(n.b, e)
	if amt >= uint64(n.a.width) {
		return uint64(n.a.width)
	}
	return amt
}

// evalSelect implements the McCarthy array axioms structurally: a Select
// through a chain of Store nodes resolves at the first Store whose index is
// equal (under e) to idx, or falls through to the ArrayConst base case,
// which defaults every never-written cell to zero. That default is what
// models a "fresh symbolic cell" for uninitialized memory: it is concrete
// here because this backend only ever evaluates under a fixed satisfying
// assignment, but it is idempotent per address as state.Memory requires.
func evalSelect(arr *expr, idx uint64, e env) uint64 {
	for arr.op == kStore {
		if evalBV(arr.b, e) == idx {
			return evalBV(arr.c, e)
		}
		arr = arr.a
	}
	return 0
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

// collectVars walks every node reachable from roots and returns the set of
// free bit-vector variables, in first-encounter order so search order is
// deterministic for a fixed formula.
func collectVars(roots []*expr) []*expr {
	seen := map[string]bool{}
	var out []*expr
	var walk func(n *expr)
	walk = func(n *expr) {
		if n == nil {
			return
		}
		if n.op == kVar {
			if !seen[n.name] {
				seen[n.name] = true
				out = append(out, n)
			}
		}
		walk(n.a)
		walk(n.b)
		walk(n.c)
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// boundedRangeCap is the largest literal below which hints enumerates the
// whole [0, literal] range instead of just its boundary, so that narrow
// range constraints (loop trip counts, small symbolic table indices) are
// fully covered by the hinted search rather than relying on random luck.
const boundedRangeCap = 4096

// hints returns candidate values worth trying first for v: its domain
// extremes, any literal it is directly compared against anywhere in roots
// (with a neighborhood around it), and — when that literal is small — the
// full range it bounds. This lets the search solve the common "x < const" /
// "x == const" shapes (and enumerate all values of a narrowly-bounded
// index, as used by symbolic load-address resolution) deterministically
// instead of falling through to randomized sampling.
func hints(v *expr, roots []*expr) []uint64 {
	maxVal := maskTo(v.width, ^uint64(0))
	set := map[uint64]bool{0: true, maxVal: true}
	var walk func(n *expr)
	walk = func(n *expr) {
		if n == nil {
			return
		}
		switch n.op {
		case kEq, kUlt, kUle, kSlt, kSle:
			lhsIsV := n.a.op == kVar && n.a.name == v.name
			rhsIsV := n.b.op == kVar && n.b.name == v.name
			if lhsIsV && n.b.op == kLit {
				addBounded(set, n.b.bits, v.width)
			}
			if rhsIsV && n.a.op == kLit {
				addBounded(set, n.a.bits, v.width)
			}
		}
		walk(n.a)
		walk(n.b)
		walk(n.c)
	}
	for _, r := range roots {
		walk(r)
	}
	out := make([]uint64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func addBounded(set map[uint64]bool, lit uint64, w uint) {
	set[lit] = true
	if lit > 0 {
		set[maskTo(w, lit-1)] = true
	}
	set[maskTo(w, lit+1)] = true
	if lit <= boundedRangeCap {
		for v := uint64(0); v <= lit; v++ {
			set[v] = true
		}
	}
}
