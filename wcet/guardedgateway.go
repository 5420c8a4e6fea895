package wcet

import (
	"context"
	"sync"

	"symex/smt"
)

// guardedGateway serializes access to a single smt.Gateway behind a mutex so
// the bounded-parallel exploration mode (§5) can share one solver instance
// safely across worker goroutines.
//
// §5 describes "each worker owns its own SMT gateway instance" as the ideal;
// this bundled reference backend's Expr handles are only meaningful against
// the Gateway that minted them, so a path state forked under one Gateway
// can never be handed to a different instance mid-exploration. A single
// shared, mutex-guarded Gateway is the decision recorded for this discharged
// Open Question (see DESIGN.md): the Gateway is built exactly once, by
// newGateway (no smt.GatewayFactory is called), and the errgroup worker pool still fans the CPU-bound
// decode/interpret work — where this backend actually spends wall-clock —
// across goroutines; only the comparatively rare solver calls serialize.
type guardedGateway struct {
	mu sync.Mutex
	g  smt.Gateway
}

func guard(g smt.Gateway) smt.Gateway { return &guardedGateway{g: g} }

func (w *guardedGateway) Literal(width uint, bits uint64) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Literal(width, bits)
}
func (w *guardedGateway) Var(name string, width uint) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Var(name, width)
}
func (w *guardedGateway) Add(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Add(a, b)
}
func (w *guardedGateway) Sub(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Sub(a, b)
}
func (w *guardedGateway) Mul(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Mul(a, b)
}
func (w *guardedGateway) UDiv(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.UDiv(a, b)
}
func (w *guardedGateway) SDiv(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.SDiv(a, b)
}
func (w *guardedGateway) URem(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.URem(a, b)
}
func (w *guardedGateway) SRem(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.SRem(a, b)
}
func (w *guardedGateway) And(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.And(a, b)
}
func (w *guardedGateway) Or(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Or(a, b)
}
func (w *guardedGateway) Xor(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Xor(a, b)
}
func (w *guardedGateway) Not(a smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Not(a)
}
func (w *guardedGateway) Neg(a smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Neg(a)
}
func (w *guardedGateway) Shl(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Shl(a, b)
}
func (w *guardedGateway) LShr(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.LShr(a, b)
}
func (w *guardedGateway) AShr(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.AShr(a, b)
}
func (w *guardedGateway) Eq(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Eq(a, b)
}
func (w *guardedGateway) Ult(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Ult(a, b)
}
func (w *guardedGateway) Ule(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Ule(a, b)
}
func (w *guardedGateway) Slt(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Slt(a, b)
}
func (w *guardedGateway) Sle(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Sle(a, b)
}
func (w *guardedGateway) BoolAnd(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.BoolAnd(a, b)
}
func (w *guardedGateway) BoolOr(a, b smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.BoolOr(a, b)
}
func (w *guardedGateway) BoolNot(a smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.BoolNot(a)
}
func (w *guardedGateway) IfThenElse(cond, t, f smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.IfThenElse(cond, t, f)
}
func (w *guardedGateway) SignExtend(a smt.Expr, width uint) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.SignExtend(a, width)
}
func (w *guardedGateway) ZeroExtend(a smt.Expr, width uint) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.ZeroExtend(a, width)
}
func (w *guardedGateway) Extract(a smt.Expr, hi, lo int) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Extract(a, hi, lo)
}
func (w *guardedGateway) Concat(hi, lo smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Concat(hi, lo)
}
func (w *guardedGateway) ArrayConst(name string, indexWidth, elemWidth uint) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.ArrayConst(name, indexWidth, elemWidth)
}
func (w *guardedGateway) Select(arr, idx smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Select(arr, idx)
}
func (w *guardedGateway) Store(arr, idx, val smt.Expr) smt.Expr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Store(arr, idx, val)
}
func (w *guardedGateway) Push() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.g.Push()
}
func (w *guardedGateway) Pop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.g.Pop()
}
func (w *guardedGateway) Assert(cond smt.Expr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.g.Assert(cond)
}
func (w *guardedGateway) CheckSat(ctx context.Context, cond smt.Expr) (smt.Sat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.CheckSat(ctx, cond)
}
func (w *guardedGateway) GetValue(ctx context.Context, expr smt.Expr, cond smt.Expr) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.GetValue(ctx, expr, cond)
}
func (w *guardedGateway) SolutionsFor(ctx context.Context, expr smt.Expr, cond smt.Expr, limit int) ([]uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.SolutionsFor(ctx, expr, cond, limit)
}
func (w *guardedGateway) Backend() smt.Backend {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.g.Backend()
}
