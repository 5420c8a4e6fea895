package wcet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"symex/smt"
	"symex/state"
)

// snapshotWitness reads back a concrete value for every originally-symbolic
// input s's ancestry introduced (§4.F "snapshot the witness: the concrete
// assignment to all originally-symbolic inputs ... under this state's path
// condition"). The reference backend's GetValue/CheckSat take the
// conjunction explicitly rather than consulting hidden solver state, so the
// full path condition is rebuilt here exactly as state.State.Feasible does.
func snapshotWitness(ctx context.Context, g smt.Gateway, s *state.State) (Witness, error) {
	var cond smt.Expr
	conjuncts := s.PC.Conjuncts()
	if len(conjuncts) > 0 {
		cond = conjuncts[0]
		for _, c := range conjuncts[1:] {
			cond = g.BoolAnd(cond, c)
		}
	}
	w := make(Witness, len(s.Inputs))
	for name, expr := range s.Inputs {
		v, err := g.GetValue(ctx, expr, cond)
		if err != nil {
			return nil, fmt.Errorf("wcet: snapshotting witness value for %q: %w", name, err)
		}
		w[name] = v
	}
	return w, nil
}

// digest builds a deterministic string key for a witness so two
// structurally-identical terminations (possibly produced by independent,
// differently-forked paths) collapse to one TerminalSummary (§4.F).
func digest(w Witness) string {
	names := make([]string, 0, len(w))
	for n := range w {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s=%d;", n, w[n])
	}
	return b.String()
}
