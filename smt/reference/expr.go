// Package reference implements a bundled, pure-Go smt.Gateway backend. It
// exists because the reference corpus this engine was grown from contains no
// binding to a real QF_ABV solver (bitwuzla, boolector, z3, ...); rather than
// fabricate a CGo dependency with nothing to link against, the gateway's
// capability-set interface (smt.Gateway) is implemented here directly over a
// small expression tree, a structural evaluator, and a bounded/stochastic
// search procedure. It is sound (a reported Satisfiable assignment really
// does satisfy the query) but, unlike a real decision procedure, not
// complete on wide unconstrained domains: a query it cannot close within its
// search budget comes back Unknown rather than a wrong answer. Production
// deployments are expected to swap in a real backend behind the same
// interface; BackendBitwuzla and BackendBoolector are reserved names for
// that purpose (see smt.Backend).
package reference

import "symex/smt"

type kind uint8

const (
	kLit kind = iota
	kVar
	kAdd
	kSub
	kMul
	kUDiv
	kSDiv
	kURem
	kSRem
	kAnd
	kOr
	kXor
	kNot
	kNeg
	kShl
	kLShr
	kAShr
	kEq
	kUlt
	kUle
	kSlt
	kSle
	kBoolAnd
	kBoolOr
	kBoolNot
	kIte
	kSExt
	kZExt
	kExtract
	kConcat
	kArrayConst
	kSelect
	kStore
)

// expr is the concrete node type behind the smt.Expr interface. Nodes form
// an immutable DAG; every Gateway combinator allocates a new node rather
// than mutating its operands, so expressions built against one Push/Pop
// frame remain valid (and sharable) after a Pop discards the assertions
// that mentioned them.
type expr struct {
	op    kind
	width uint // bit-vector width; 0 for boolean-typed nodes
	bits  uint64
	name  string
	a, b, c *expr // operand slots, used per-op

	// array-only fields
	indexWidth, elemWidth uint
}

func (e *expr) Width() uint { return e.width }

func asExpr(x smt.Expr) *expr {
	// The gateway only ever hands out *expr values; a type assertion
	// failure here means a caller mixed expressions from two different
	// Gateway instances, which is a programming error.
	return x.(*expr)
}
