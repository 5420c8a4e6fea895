// Package smt defines the solver gateway: the abstract bit-vector/array
// façade the rest of the engine builds expressions against and asks
// satisfiability questions of. The gateway is a capability set (bv, array,
// check, model) rather than a concrete object model tied to one backend, so
// a real binding (bitwuzla, boolector, ...) can be dropped in behind the same
// interface the reference backend implements. See the reference subpackage
// (symex/smt/reference) for the bundled pure-Go backend used by default and
// in tests.
package smt

import "context"

// Expr is an opaque handle to a solver-side bit-vector or boolean
// expression. Its only legal uses are as an argument back into the Gateway
// that produced it; nothing outside this package inspects its internals.
type Expr interface {
	// Width returns the bit-width of a bit-vector expression, or 0 for a
	// boolean (single-bit condition) expression.
	Width() uint
}

// Backend names the concrete solver a Gateway talks to. The engine is
// polymorphic over this set; callers select one at analysis-construction
// time via Request.Solver.
type Backend string

const (
	BackendBitwuzla  Backend = "bitwuzla"
	BackendBoolector Backend = "boolector"
	BackendReference Backend = "reference"
)

// Gateway is the full capability surface the executor and WCET driver need
// from an SMT backend: expression construction over QF_ABV (bit-vectors,
// arrays, uninterpreted comparison), assumption scoping, and model
// extraction.
type Gateway interface {
	// --- expression construction ---

	Literal(width uint, bits uint64) Expr
	Var(name string, width uint) Expr

	Add(a, b Expr) Expr
	Sub(a, b Expr) Expr
	Mul(a, b Expr) Expr
	UDiv(a, b Expr) Expr
	SDiv(a, b Expr) Expr
	URem(a, b Expr) Expr
	SRem(a, b Expr) Expr
	And(a, b Expr) Expr
	Or(a, b Expr) Expr
	Xor(a, b Expr) Expr
	Not(a Expr) Expr
	Neg(a Expr) Expr
	Shl(a, b Expr) Expr
	LShr(a, b Expr) Expr
	AShr(a, b Expr) Expr

	Eq(a, b Expr) Expr
	Ult(a, b Expr) Expr
	Ule(a, b Expr) Expr
	Slt(a, b Expr) Expr
	Sle(a, b Expr) Expr

	BoolAnd(a, b Expr) Expr
	BoolOr(a, b Expr) Expr
	BoolNot(a Expr) Expr
	IfThenElse(cond, t, f Expr) Expr

	SignExtend(a Expr, width uint) Expr
	ZeroExtend(a Expr, width uint) Expr
	Extract(a Expr, hi, lo int) Expr
	Concat(hi, lo Expr) Expr

	// Array theory, used for symbolic memory: a byte-addressed array of
	// 8-bit cells over a 32-bit index space.
	ArrayConst(name string, indexWidth, elemWidth uint) Expr
	Select(arr, idx Expr) Expr
	Store(arr, idx, val Expr) Expr

	// --- scoping & queries ---

	// Push opens a new assumption frame; constraints asserted after Push
	// are discarded by the matching Pop. Frames nest.
	Push()
	// Pop discards the most recently pushed frame's assumptions.
	Pop()

	// Assert permanently (within the current frame) conjoins cond to the
	// gateway's working path condition.
	Assert(cond Expr)

	// CheckSat reports whether cond is satisfiable in conjunction with
	// everything currently asserted, without asserting it.
	CheckSat(ctx context.Context, cond Expr) (Sat, error)

	// GetValue returns a single concrete model value for expr, assuming the
	// current assertions (plus any additional cond) are satisfiable.
	GetValue(ctx context.Context, expr Expr, cond Expr) (uint64, error)

	// SolutionsFor enumerates up to limit distinct concrete values expr can
	// take under the current assertions plus cond. Used for symbolic jump
	// target and load/store address resolution (§4.E). Returns fewer than
	// limit values when that is the complete solution set.
	SolutionsFor(ctx context.Context, expr Expr, cond Expr, limit int) ([]uint64, error)

	// Backend identifies which concrete solver this Gateway talks to.
	Backend() Backend
}

// Sat is the three-valued result of a satisfiability query: a solver may
// legitimately time out or report unknown, which the caller must treat
// differently from a hard Unsat.
type Sat int

const (
	Unsat Sat = iota
	Satisfiable
	Unknown
)

// GatewayFactory constructs a fresh, independent Gateway instance. The WCET
// driver does not call one: its parallel mode shares the single Gateway it
// builds for the run behind a mutex wrapper (see wcet/guardedgateway.go).
type GatewayFactory func() (Gateway, error)
