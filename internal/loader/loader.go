// Package loader resolves the simulator's native library modules before any
// flowsheet work begins. Resolution is a preflight: each module is probed at
// its fully qualified path under the simulator home first, then through the
// configured search paths as a fallback. One module's failure never stops
// the loop; the caller decides from the report whether the simulator is
// usable. Search paths are passed in explicitly rather than read from
// ambient process state.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Module is one native library the simulator needs. Critical modules make
// the whole report fail when they cannot be resolved.
type Module struct {
	Name     string
	Critical bool
}

type Status int

const (
	StatusPrimary Status = iota
	StatusFallback
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPrimary:
		return "loaded"
	case StatusFallback:
		return "loaded (fallback)"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome for a single module.
type Result struct {
	Module Module
	Status Status
	Path   string
	Err    error
}

// Report collects every module's outcome.
type Report struct {
	Results []Result
}

// Failed returns the modules that could not be resolved at all.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Err is non-nil when any critical module failed, making the simulator
// unusable for a run.
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Status == StatusFailed && res.Module.Critical {
			return fmt.Errorf("critical module %s unavailable: %w", res.Module.Name, res.Err)
		}
	}
	return nil
}

// Resolve probes every module in order. home is the simulator installation
// directory used for the primary attempt; searchPaths back the fallback.
func Resolve(home string, searchPaths []string, modules []Module, log *slog.Logger) *Report {
	if log == nil {
		log = slog.Default()
	}
	report := &Report{Results: make([]Result, 0, len(modules))}

	for _, mod := range modules {
		res := Result{Module: mod}

		primary := filepath.Join(home, mod.Name)
		if err := probe(primary); err == nil {
			res.Status = StatusPrimary
			res.Path = primary
			log.Info("module loaded", "module", mod.Name, "path", primary)
			report.Results = append(report.Results, res)
			continue
		} else {
			log.Warn("primary load failed", "module", mod.Name, "path", primary, "error", err)
			res.Err = err
		}

		if path, err := fallback(searchPaths, mod.Name); err == nil {
			res.Status = StatusFallback
			res.Path = path
			res.Err = nil
			log.Info("module loaded via search path", "module", mod.Name, "path", path)
		} else {
			res.Status = StatusFailed
			res.Err = err
			log.Error("module load failed", "module", mod.Name, "critical", mod.Critical, "error", err)
		}
		report.Results = append(report.Results, res)
	}

	return report
}

func probe(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func fallback(searchPaths []string, name string) (string, error) {
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name)
		if err := probe(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in %d search path(s)", name, len(searchPaths))
}
