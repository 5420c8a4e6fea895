package smt

import "fmt"

// SolverUnknown is returned when a backend cannot decide satisfiability
// within its configured effort bound (distinct from a timeout).
type SolverUnknown struct {
	Query string
}

func (e SolverUnknown) Error() string {
	return fmt.Sprintf("smt: solver returned unknown for %q", e.Query)
}

// SolverTimeout is returned when a query exceeds its per-query or per-run
// deadline. The WCET driver treats the owning path as incomplete rather than
// erroring the whole run (§7).
type SolverTimeout struct {
	Query string
}

func (e SolverTimeout) Error() string {
	return fmt.Sprintf("smt: solver timed out on %q", e.Query)
}

// Unsupported is returned by a backend asked to decide a construct outside
// its theory (e.g. a backend that does not implement arrays).
type Unsupported struct {
	Backend Backend
	Feature string
}

func (e Unsupported) Error() string {
	return fmt.Sprintf("smt: backend %s does not support %s", e.Backend, e.Feature)
}
