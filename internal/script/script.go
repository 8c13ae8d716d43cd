// Package script runs the programs attached to script blocks. A program is
// a sequence of assignments, one per line:
//
//	outlet_temp = in["hot"].temperature - 5.0
//	ratio = params.split * 2
//
// The right-hand side is an expr expression evaluated against the block's
// parameters (params) and the results of its inlet objects (in, keyed by
// object name). Each assignment's value becomes a result of the block.
package script

import (
	"fmt"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

type assignment struct {
	target string
	prog   *vm.Program
}

// Program is a compiled script-block program. It is what a block's
// scripting instance holds between runs.
type Program struct {
	assignments []assignment
}

// Env is the evaluation environment for one run of a program.
type Env struct {
	Params map[string]float64
	Inlets map[string]map[string]float64
}

func (e Env) exprEnv() map[string]any {
	in := make(map[string]any, len(e.Inlets))
	for name, results := range e.Inlets {
		in[name] = results
	}
	return map[string]any{
		"params": e.Params,
		"in":     in,
	}
}

// Compile parses and compiles a program. Blank lines and '#' comments are
// ignored. Each remaining line must be a single 'name = expression'
// assignment.
func Compile(src string) (*Program, error) {
	p := &Program{}
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		target, rhs, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'name = expression', got %q", i+1, line)
		}
		target = strings.TrimSpace(target)
		if target == "" || strings.ContainsAny(target, " \t") {
			return nil, fmt.Errorf("line %d: invalid assignment target %q", i+1, target)
		}
		prog, err := expr.Compile(strings.TrimSpace(rhs), expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		p.assignments = append(p.assignments, assignment{target: target, prog: prog})
	}
	return p, nil
}

// Len returns the number of compiled assignments.
func (p *Program) Len() int { return len(p.assignments) }

// Run evaluates every assignment in order and returns the produced values.
// Later assignments can read earlier ones by name.
func (p *Program) Run(env Env) (map[string]float64, error) {
	scope := env.exprEnv()
	out := make(map[string]float64, len(p.assignments))

	for _, a := range p.assignments {
		v, err := expr.Run(a.prog, scope)
		if err != nil {
			return nil, fmt.Errorf("eval %s: %w", a.target, err)
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("eval %s: %w", a.target, err)
		}
		out[a.target] = f
		scope[a.target] = f
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected numeric result, got %T", v)
	}
}
