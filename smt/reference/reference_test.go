package reference

import (
	"context"
	"testing"

	"symex/smt"
)

func TestCheckSatSimpleComparison(t *testing.T) {
	g := New(1)
	x := g.Var("x", 32)
	cond := g.Ult(x, g.Literal(32, 10))

	sat, err := g.CheckSat(context.Background(), cond)
	if err != nil {
		t.Fatalf("CheckSat: %v", err)
	}
	if sat != smt.Satisfiable {
		t.Fatalf("got %v, want Satisfiable", sat)
	}
}

func TestCheckSatUnsatUnderAssumption(t *testing.T) {
	g := New(1)
	x := g.Var("x", 8)
	g.Assert(g.Ult(x, g.Literal(8, 10)))

	sat, err := g.CheckSat(context.Background(), g.BoolNot(g.Ult(x, g.Literal(8, 10))))
	if err != nil {
		t.Fatalf("CheckSat: %v", err)
	}
	if sat != smt.Unsat {
		t.Fatalf("got %v, want Unsat", sat)
	}
}

func TestGetValueRespectsConstraint(t *testing.T) {
	g := New(7)
	x := g.Var("x", 8)
	g.Assert(g.Eq(x, g.Literal(8, 42)))

	v, err := g.GetValue(context.Background(), x, nil)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestSolutionsForEnumeratesDistinctValues(t *testing.T) {
	g := New(3)
	i := g.Var("i", 32)
	g.Assert(g.Ult(i, g.Literal(32, 4)))

	got, err := g.SolutionsFor(context.Background(), i, nil, 8)
	if err != nil {
		t.Fatalf("SolutionsFor: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d solutions, want 4: %v", len(got), got)
	}
	seen := map[uint64]bool{}
	for _, v := range got {
		if v >= 4 {
			t.Fatalf("solution %d out of range [0,4)", v)
		}
		seen[v] = true
	}
	if len(seen) != 4 {
		t.Fatalf("solutions not distinct: %v", got)
	}
}

func TestPushPopScopesAssertions(t *testing.T) {
	g := New(2)
	x := g.Var("x", 8)
	g.Assert(g.Eq(x, g.Literal(8, 5)))

	g.Push()
	g.Assert(g.Eq(x, g.Literal(8, 6)))
	sat, err := g.CheckSat(context.Background(), nil)
	if err != nil {
		t.Fatalf("CheckSat: %v", err)
	}
	if sat != smt.Unsat {
		t.Fatalf("inner frame: got %v, want Unsat (x can't be both 5 and 6)", sat)
	}
	g.Pop()

	sat, err = g.CheckSat(context.Background(), nil)
	if err != nil {
		t.Fatalf("CheckSat: %v", err)
	}
	if sat != smt.Satisfiable {
		t.Fatalf("after Pop: got %v, want Satisfiable", sat)
	}
}

func TestArraySelectOverStoreReturnsWrittenValue(t *testing.T) {
	g := New(4)
	base := g.ArrayConst("mem", 32, 8)
	idx := g.Literal(32, 0x100)
	written := g.Store(base, idx, g.Literal(8, 0xAB))

	v, err := g.GetValue(context.Background(), g.Select(written, idx), nil)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != 0xAB {
		t.Fatalf("got 0x%X, want 0xAB", v)
	}
}

func TestArraySelectUninitializedIsZeroAndIdempotent(t *testing.T) {
	g := New(5)
	base := g.ArrayConst("mem", 32, 8)
	idx := g.Literal(32, 0x200)

	a, err := g.GetValue(context.Background(), g.Select(base, idx), nil)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	b, err := g.GetValue(context.Background(), g.Select(base, idx), nil)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if a != b {
		t.Fatalf("uninitialized read not idempotent: %d vs %d", a, b)
	}
}
