// Package engine implements the calculation primitives of the automation
// contract: incremental recalculation of dirty objects, explicit-order
// recalculation, and the forced full pass used to reach a stable baseline.
// The per-object arithmetic lives in unit calculators; the engine owns
// ordering, calculated flags, timeouts, and error collection.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/flowrun/internal/flowsheet"
	"github.com/san-kum/flowrun/internal/graph"
)

// DefaultTimeout bounds an incremental pass when the caller does not
// override it.
const DefaultTimeout = 300 * time.Second

// Observer receives progress events during a calculation pass.
type Observer interface {
	PassStarted(objects []string)
	ObjectStarted(name string)
	ObjectFinished(name string, elapsed time.Duration, err error)
	PassFinished(elapsed time.Duration, failures int)
}

type Engine struct {
	reg       *Registry
	observers []Observer
	log       *slog.Logger
}

func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{reg: NewRegistry(), log: log}
}

// Registry exposes the calculator registry, letting callers install custom
// unit calculators.
func (e *Engine) Registry() *Registry { return e.reg }

func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// CalculateFlowsheet runs an incremental pass: objects whose Calculated flag
// is false, plus everything downstream of them, are recomputed in dependency
// order. Flags are not reset beforehand, so results from an earlier run are
// kept and skipped. The pass aborts when timeout elapses; partial results
// stand and a timeout entry is appended to the returned list.
func (e *Engine) CalculateFlowsheet(ctx context.Context, fs *flowsheet.Flowsheet, timeout time.Duration) []CalcError {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := buildGraph(fs)
	order, err := g.TopoOrder()
	if err != nil {
		return []CalcError{{Err: err}}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.runPass(ctx, fs, g, order)
}

// RequestCalculation runs the explicit-order pass. With changeOrder true the
// order is recomputed from connectivity and stored on the flowsheet before
// executing; otherwise the previously stored order is applied as-is. This
// primitive reports failure by returning a single error; callers wanting the
// list shape normalize it themselves.
func (e *Engine) RequestCalculation(ctx context.Context, fs *flowsheet.Flowsheet, changeOrder bool) error {
	g := buildGraph(fs)

	if changeOrder {
		order, err := g.TopoOrder()
		if err != nil {
			return fmt.Errorf("recompute calculation order: %w", err)
		}
		fs.CalculationOrder = order
	}
	if len(fs.CalculationOrder) == 0 {
		return fmt.Errorf("flowsheet %s has no stored calculation order", fs.Name)
	}
	for _, name := range fs.CalculationOrder {
		if _, ok := fs.Get(name); !ok {
			return fmt.Errorf("calculation order names missing object %s", name)
		}
	}

	errs := e.runPass(ctx, fs, g, fs.CalculationOrder)
	if len(errs) > 0 {
		return fmt.Errorf("ordered calculation: %d object(s) failed: %w", len(errs), errs[0])
	}
	return nil
}

// ForceFullRecalculation is the stabilization primitive: optionally clear
// every Calculated flag, optionally recompute and store the calculation
// order, then run a pass over whatever is dirty.
func (e *Engine) ForceFullRecalculation(ctx context.Context, fs *flowsheet.Flowsheet, resetFlags, reorder bool) []CalcError {
	g := buildGraph(fs)
	order, err := g.TopoOrder()
	if err != nil {
		return []CalcError{{Err: err}}
	}

	if resetFlags {
		fs.ClearAllCalculatedFlags()
	}
	if reorder {
		fs.CalculationOrder = order
	}
	return e.runPass(ctx, fs, g, order)
}

// runPass visits the given order, recalculating the dirty closure. An object
// whose upstream failed is recorded as its own failure and left dirty rather
// than computed from stale inputs.
func (e *Engine) runPass(ctx context.Context, fs *flowsheet.Flowsheet, g *graph.Graph, order []string) []CalcError {
	seed := make(map[string]bool)
	for _, name := range fs.DirtyObjects() {
		seed[name] = true
	}
	visit := g.Closure(seed)

	toVisit := make([]string, 0, len(visit))
	for _, name := range order {
		if visit[name] {
			toVisit = append(toVisit, name)
		}
	}
	for _, o := range e.observers {
		o.PassStarted(toVisit)
	}
	e.log.Debug("calculation pass", "objects", len(toVisit), "total", len(order))

	var errs []CalcError
	failed := make(map[string]bool)
	passStart := time.Now()

	for _, name := range order {
		if !visit[name] {
			continue
		}

		select {
		case <-ctx.Done():
			errs = append(errs, CalcError{Err: fmt.Errorf("calculation aborted: %w", ctx.Err())})
			e.finishPass(passStart, errs)
			return errs
		default:
		}

		obj, ok := fs.Get(name)
		if !ok {
			errs = append(errs, CalcError{Object: name, Err: fmt.Errorf("object not found")})
			continue
		}

		if up := failedUpstream(g, failed, name); up != "" {
			failed[name] = true
			obj.Calculated = false
			errs = append(errs, CalcError{Object: name, Err: fmt.Errorf("unresolved dependency: upstream %s failed", up)})
			continue
		}

		calc, err := e.reg.Get(obj.Type)
		if err != nil {
			failed[name] = true
			errs = append(errs, CalcError{Object: name, Err: err})
			continue
		}

		for _, o := range e.observers {
			o.ObjectStarted(name)
		}
		start := time.Now()
		err = calc(fs, obj)
		elapsed := time.Since(start)
		for _, o := range e.observers {
			o.ObjectFinished(name, elapsed, err)
		}

		if err != nil {
			failed[name] = true
			obj.Calculated = false
			errs = append(errs, CalcError{Object: name, Err: err})
			e.log.Warn("object failed", "object", name, "error", err)
			continue
		}
		obj.Calculated = true
	}

	e.finishPass(passStart, errs)
	return errs
}

func (e *Engine) finishPass(start time.Time, errs []CalcError) {
	elapsed := time.Since(start)
	for _, o := range e.observers {
		o.PassFinished(elapsed, len(errs))
	}
}

func failedUpstream(g *graph.Graph, failed map[string]bool, name string) string {
	for _, up := range g.Upstream(name) {
		if failed[up] {
			return up
		}
	}
	return ""
}

func buildGraph(fs *flowsheet.Flowsheet) *graph.Graph {
	g := graph.New()
	for _, obj := range fs.SimulationObjects() {
		g.AddNode(obj.Name)
		for _, in := range obj.Inlets {
			g.AddEdge(in, obj.Name)
		}
	}
	return g
}
