package reference

import (
	"context"
	"math/rand"

	"symex/smt"
)

// solve searches for an assignment to every free variable in query that
// makes every root in query evaluate to a nonzero (true) bit-vector value.
// The returned smt.Sat distinguishes a confirmed Unsat (the domain was
// small enough to enumerate exhaustively and no assignment worked) from
// Unknown (the domain was too wide to cover completely and the bounded
// search found nothing) — see the MaxExhaustive comment on Gateway.
func (g *Gateway) solve(ctx context.Context, query []*expr) (env, smt.Sat, error) {
	vars := collectVars(query)
	if len(vars) == 0 {
		e := env{}
		if satisfies(query, e) {
			return e, smt.Satisfiable, nil
		}
		return nil, smt.Unsat, nil
	}

	var domainSize uint64 = 1
	overflow := false
	for _, v := range vars {
		sz := uint64(1) << v.width
		if v.width >= 40 {
			overflow = true
			break
		}
		domainSize *= sz
		if domainSize > g.MaxExhaustive {
			overflow = true
			break
		}
	}

	if !overflow && domainSize <= g.MaxExhaustive {
		e, ok := exhaustive(query, vars, 0, env{})
		if ok {
			return e, smt.Satisfiable, nil
		}
		return nil, smt.Unsat, nil
	}

	// Seed the search with boundary/literal-derived candidates per
	// variable before falling back to uniform random sampling; this
	// resolves the common single-comparison branch conditions
	// deterministically rather than by luck.
	perVarHints := make([][]uint64, len(vars))
	for i, v := range vars {
		perVarHints[i] = hints(v, query)
	}
	if e, ok := hintedSearch(query, vars, perVarHints); ok {
		return e, smt.Satisfiable, nil
	}

	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		if attempt%1024 == 0 {
			select {
			case <-ctx.Done():
				return nil, smt.Unknown, ctx.Err()
			default:
			}
		}
		e := env{}
		for _, v := range vars {
			e[v.name] = randomBits(g.rng, v.width)
		}
		if satisfies(query, e) {
			return e, smt.Satisfiable, nil
		}
	}
	return nil, smt.Unknown, nil
}

func satisfies(query []*expr, e env) bool {
	for _, r := range query {
		if evalBV(r, e) == 0 {
			return false
		}
	}
	return true
}

// exhaustive enumerates the full cartesian product of every variable's
// domain. Only reachable when the caller has already bounded the product of
// domain sizes to MaxExhaustive, so this always terminates quickly.
func exhaustive(query []*expr, vars []*expr, i int, acc env) (env, bool) {
	if i == len(vars) {
		if satisfies(query, acc) {
			out := make(env, len(acc))
			for k, v := range acc {
				out[k] = v
			}
			return out, true
		}
		return nil, false
	}
	v := vars[i]
	domain := uint64(1) << v.width
	for val := uint64(0); val < domain; val++ {
		acc[v.name] = val
		if e, ok := exhaustive(query, vars, i+1, acc); ok {
			return e, true
		}
	}
	delete(acc, v.name)
	return nil, false
}

// hintedSearch tries the cartesian product of each variable's hint list
// (bounded) before giving up to random sampling. Hint lists are small (a
// handful of boundary/literal values per variable) so this stays cheap even
// with several free variables.
func hintedSearch(query []*expr, vars []*expr, perVarHints [][]uint64) (env, bool) {
	const maxCombos = 1 << 16
	combos := 1
	for _, h := range perVarHints {
		combos *= len(h)
		if combos > maxCombos {
			return nil, false
		}
	}
	e := env{}
	var rec func(i int) (env, bool)
	rec = func(i int) (env, bool) {
		if i == len(vars) {
			if satisfies(query, e) {
				out := make(env, len(e))
				for k, v := range e {
					out[k] = v
				}
				return out, true
			}
			return nil, false
		}
		for _, val := range perVarHints[i] {
			e[vars[i].name] = val
			if out, ok := rec(i + 1); ok {
				return out, true
			}
		}
		return nil, false
	}
	return rec(0)
}

func randomBits(rng *rand.Rand, w uint) uint64 {
	return maskTo(w, uint64(rng.Int63()))
}
