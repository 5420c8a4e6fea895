package wcet

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"symex/elfimage"
	"symex/exec"
	"symex/smt"
	"symex/smt/reference"
	"symex/state"
)

const defaultDecoderCacheSize = 4096

// Analyze loads req.ELFPath, resolves req.Entry, and runs the exploration
// driver to completion (§6 "wcet.Analyze(ctx, Request) (Result, error)").
func Analyze(ctx context.Context, req Request) (Result, error) {
	img, err := elfimage.Load(req.ELFPath)
	if err != nil {
		return Result{}, err
	}
	entry, ok := img.SymbolAddr(req.Entry)
	if !ok {
		return Result{}, fmt.Errorf("wcet: entry symbol %q not found in %s", req.Entry, req.ELFPath)
	}
	panicSymbol := ""
	for _, name := range []string{"__symex_panic", "rust_begin_unwind", "panic"} {
		if _, ok := img.SymbolAddr(name); ok {
			panicSymbol = name
			break
		}
	}

	p, err := profileFor(req.Arch)
	if err != nil {
		return Result{}, err
	}
	g, err := newGateway(req.Solver)
	if err != nil {
		return Result{}, err
	}

	engine, err := buildEngine(p, img, exec.Symbols{ByAddr: img.ByAddr}, panicSymbol, fanoutOrDefault(req.FanoutLimit), defaultDecoderCacheSize)
	if err != nil {
		return Result{}, err
	}
	if req.Log != nil {
		engine.Log = req.Log.Logger.WithField("component", "exec")
	}
	root := buildEntryState(g, p, entry, img.Regions, req.InitialBindings)
	return AnalyzeEngine(ctx, engine, root, req)
}

func newGateway(backend smt.Backend) (smt.Gateway, error) {
	switch backend {
	case "", smt.BackendReference:
		return reference.New(1), nil
	default:
		return nil, fmt.Errorf("wcet: solver backend %q is not available in this build (only %q is bundled)", backend, smt.BackendReference)
	}
}

func fanoutOrDefault(n int) int {
	if n <= 0 {
		return 8
	}
	return n
}

// AnalyzeEngine runs the frontier-exploration loop against an
// already-constructed engine and root state. Exposed separately from
// Analyze so tests (and callers with an in-memory, non-ELF program image)
// can drive the driver without round-tripping through a real ELF file.
func AnalyzeEngine(ctx context.Context, engine *exec.Engine, root *state.State, req Request) (Result, error) {
	if req.SolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.SolverTimeout)
		defer cancel()
	}
	if req.Parallel {
		root = rehomeState(root)
		engine = rehomeEngine(engine)
	}

	acc := newAccumulator()
	acc.log = req.Log
	var err error
	if req.Parallel {
		err = runParallel(ctx, engine, root, req, acc)
	} else {
		err = runSequential(ctx, engine, root, req, acc)
	}
	if err != nil && err != errBudgetExceeded {
		return Result{}, err
	}
	res := acc.result()
	if err == errBudgetExceeded || ctx.Err() != nil {
		res.Incomplete = true
	}
	if req.Log != nil {
		req.Log.WithFields(logrus.Fields{
			"wcet_cycles": res.WCETCycles,
			"panic_found": res.PanicFound,
			"incomplete":  res.Incomplete,
			"paths":       len(res.Summaries),
		}).Info("analysis complete")
	}
	return res, nil
}

// rehomeState wraps the root state's Gateway in the shared mutex guard, so
// every state forked from it inherits the guarded Gateway; rehomeEngine
// returns the engine unchanged. AnalyzeEngine calls both once, before any
// stepping starts, when Parallel is set. They exist so the wrapping step
// reads as part of entering parallel mode rather than being buried inside
// runParallel.
func rehomeState(s *state.State) *state.State {
	s.Gateway = guard(s.Gateway)
	return s
}

func rehomeEngine(e *exec.Engine) *exec.Engine { return e }

var errBudgetExceeded = fmt.Errorf("wcet: exploration budget exceeded")

// accumulator reduces terminal states into a Result, safe for concurrent
// use from the parallel driver.
type accumulator struct {
	mu        sync.Mutex
	wcet      uint64
	haveAny   bool
	witness   Witness
	panicFound bool
	panicW    Witness
	summaries mapset.Set[TerminalSummary]
	log       *logrus.Entry
}

func newAccumulator() *accumulator {
	return &accumulator{summaries: mapset.NewSet[TerminalSummary]()}
}

func (a *accumulator) record(ctx context.Context, g smt.Gateway, s *state.State) error {
	kind := statusName(s.St.Kind)
	w, err := snapshotWitness(ctx, g, s)
	if err != nil {
		return err
	}
	if a.log != nil {
		a.log.WithFields(logrus.Fields{"status": kind, "cycles": s.Cycles}).Info("path terminated")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries.Add(TerminalSummary{Status: kind, Cycles: s.Cycles, WitnessDigest: digest(w)})
	switch s.St.Kind {
	case state.TerminatedNormal:
		if !a.haveAny || s.Cycles > a.wcet {
			a.haveAny = true
			a.wcet = s.Cycles
			a.witness = w
		}
	case state.TerminatedPanic:
		if !a.panicFound {
			a.panicFound = true
			a.panicW = w
		}
	}
	return nil
}

func (a *accumulator) result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Result{
		WCETCycles:   a.wcet,
		Witness:      a.witness,
		PanicFound:   a.panicFound,
		PanicWitness: a.panicW,
		Summaries:    a.summaries.ToSlice(),
	}
}

func statusName(k state.TerminalKind) string {
	switch k {
	case state.Running:
		return "Running"
	case state.TerminatedNormal:
		return "Terminated(Normal)"
	case state.TerminatedPanic:
		return "Terminated(Panic)"
	case state.TerminatedAssumptionViolated:
		return "Terminated(AssumptionViolated)"
	case state.TerminatedSuppressed:
		return "Terminated(Suppressed)"
	case state.ErrorStatus:
		return "Error"
	}
	return "Unknown"
}

// runSequential is the default depth-first driver (§4.F "depth-first is the
// default for memory economy"): a single goroutine, a plain stack frontier.
func runSequential(ctx context.Context, e *exec.Engine, root *state.State, req Request, acc *accumulator) error {
	frontier := []*state.State{root}
	steps, paths := 0, 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return errBudgetExceeded
		}
		if req.MaxSteps > 0 && steps >= req.MaxSteps {
			return errBudgetExceeded
		}
		if req.MaxPaths > 0 && paths >= req.MaxPaths {
			return errBudgetExceeded
		}
		s := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		succs, err := e.Step(ctx, s)
		if err != nil {
			return err
		}
		steps++
		for _, c := range succs {
			if c.St.IsTerminal() {
				paths++
				if err := acc.record(ctx, c.Gateway, c); err != nil {
					return err
				}
				continue
			}
			frontier = append(frontier, c)
		}
	}
	return nil
}

// runParallel dispatches independent frontier states across a worker pool
// sized by GOMAXPROCS (§5). The frontier itself is protected by a mutex;
// the Gateway every state carries was wrapped by rehomeState before this
// runs, so concurrent Step calls serialize their solver queries safely
// (see guardedgateway.go for why this engine shares one Gateway rather than
// one per worker).
func runParallel(ctx context.Context, e *exec.Engine, root *state.State, req Request, acc *accumulator) error {
	mu := sync.Mutex{}
	cond := sync.NewCond(&mu)
	frontier := []*state.State{root}
	steps, paths, active := 0, 0, 0
	budgetHit := false

	// pop blocks until either work is available, the frontier is
	// permanently empty (no state left and no worker currently processing
	// one that might push more), or a budget/cancellation ends the run.
	pop := func() (*state.State, bool) {
		mu.Lock()
		defer mu.Unlock()
		for {
			if budgetHit {
				return nil, false
			}
			if req.MaxSteps > 0 && steps >= req.MaxSteps {
				budgetHit = true
				cond.Broadcast()
				return nil, false
			}
			if req.MaxPaths > 0 && paths >= req.MaxPaths {
				budgetHit = true
				cond.Broadcast()
				return nil, false
			}
			if len(frontier) > 0 {
				s := frontier[len(frontier)-1]
				frontier = frontier[:len(frontier)-1]
				active++
				return s, true
			}
			if active == 0 {
				return nil, false
			}
			cond.Wait()
		}
	}
	finish := func(results []*state.State, terminals int) {
		mu.Lock()
		active--
		steps++
		paths += terminals
		frontier = append(frontier, results...)
		cond.Broadcast()
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := workerCount()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					mu.Lock()
					cond.Broadcast()
					mu.Unlock()
					return nil
				}
				s, ok := pop()
				if !ok {
					return nil
				}
				succs, err := e.Step(gctx, s)
				if err != nil {
					finish(nil, 0)
					return err
				}
				var live []*state.State
				for _, c := range succs {
					if c.St.IsTerminal() {
						if err := acc.record(gctx, c.Gateway, c); err != nil {
							finish(nil, 0)
							return err
						}
						continue
					}
					live = append(live, c)
				}
				finish(live, len(succs)-len(live))
			}
		})
	}
	err := g.Wait()
	if err != nil {
		return err
	}
	if budgetHit {
		return errBudgetExceeded
	}
	return nil
}

func workerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
