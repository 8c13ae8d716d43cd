// Package runner orchestrates the two recalculation passes: initialize a
// fresh manager and flowsheet, stabilize with a forced full pass, run the
// mode's driver, report, and save. The auto driver's list-returning call
// and the ordered driver's throw-style call are normalized into one Result
// shape here.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/san-kum/flowrun/internal/automation"
	"github.com/san-kum/flowrun/internal/config"
	"github.com/san-kum/flowrun/internal/engine"
	"github.com/san-kum/flowrun/internal/flowsheet"
	"github.com/san-kum/flowrun/internal/storage"
)

// Mode selects a calculation driver.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeOrdered Mode = "ordered"
)

// Result is the normalized outcome of one pass, whichever driver produced
// it.
type Result struct {
	Mode     Mode
	Suffix   string
	Input    string
	Output   string
	LogPath  string
	Duration time.Duration
	Errors   []engine.CalcError
}

type Runner struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *storage.Store
	observers []engine.Observer
}

func New(cfg *config.Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{cfg: cfg, log: log}
	if cfg.DataDir != "" {
		r.store = storage.New(cfg.DataDir)
	}
	return r
}

// AddObserver registers an engine observer for every subsequent pass.
func (r *Runner) AddObserver(o engine.Observer) {
	r.observers = append(r.observers, o)
}

// Run performs both passes against the same input, each with its own
// manager and its own flowsheet load so neither biases the other.
func (r *Runner) Run(ctx context.Context, path string) ([]*Result, error) {
	results := make([]*Result, 0, 2)
	for _, mode := range []Mode{ModeAuto, ModeOrdered} {
		res, err := r.RunPass(ctx, path, mode)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunPass performs a single pass. The returned error covers orchestration
// failures (load, save); calculation failures land in Result.Errors and do
// not gate saving.
func (r *Runner) RunPass(ctx context.Context, path string, mode Mode) (*Result, error) {
	mgr := automation.New(r.log)
	mgr.CalculationTimeout = r.cfg.Timeout()
	for _, o := range r.observers {
		mgr.Engine().AddObserver(o)
	}

	fs, err := mgr.Initialize(path)
	if err != nil {
		return nil, err
	}

	timings := &timingRecorder{}
	mgr.Engine().AddObserver(timings)

	r.log.Info("stabilization pass", "mode", mode)
	if errs := mgr.ForceFullRecalculation(ctx, fs, true, true); len(errs) > 0 {
		r.log.Warn("stabilization reported failures", "count", len(errs))
	}
	timings.reset()

	res := &Result{Mode: mode, Input: path}
	switch mode {
	case ModeAuto:
		res.Suffix = r.cfg.AutoSuffix
		r.log.Info("starting incremental calculation", "timeout", mgr.CalculationTimeout)
		start := time.Now()
		res.Errors = mgr.CalculateFlowsheet(ctx, fs)
		res.Duration = time.Since(start)

	case ModeOrdered:
		res.Suffix = r.cfg.OrderedSuffix
		r.log.Info("starting ordered calculation")
		start := time.Now()
		if err := mgr.RequestCalculation(ctx, fs, true); err != nil {
			res.Errors = []engine.CalcError{{Err: err}}
		}
		res.Duration = time.Since(start)

	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}

	r.log.Info("calculation finished", "mode", mode,
		"duration", res.Duration.Round(time.Millisecond), "failures", len(res.Errors))

	if err := r.save(mgr, fs, res); err != nil {
		return res, err
	}
	r.archive(res, timings.series)
	return res, nil
}

// save writes the recalculated flowsheet and its text log to paths derived
// from the input path and the mode's suffix. By default existing files are
// overwritten; KeepExisting makes that an error instead.
func (r *Runner) save(mgr *automation.Manager, fs *flowsheet.Flowsheet, res *Result) error {
	base, ext := splitExt(res.Input)
	res.Output = fmt.Sprintf("%s_%s%s", base, res.Suffix, ext)
	res.LogPath = fmt.Sprintf("%s_%s_log.txt", base, res.Suffix)

	if r.cfg.KeepExisting {
		for _, p := range []string{res.Output, res.LogPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("output %s already exists", p)
			}
		}
	}

	if err := mgr.SaveFlowsheet(fs, res.Output, false); err != nil {
		return err
	}

	log := fmt.Sprintf("Input:    %s\nOutput:   %s\nDuration: %.2fs\n",
		res.Input, res.Output, res.Duration.Seconds())
	if err := os.WriteFile(res.LogPath, []byte(log), 0644); err != nil {
		return err
	}

	r.log.Info("outputs written", "flowsheet", res.Output, "log", res.LogPath)
	return nil
}

// archive is best-effort: a broken run store must not fail the pass.
func (r *Runner) archive(res *Result, series []storage.ObjectTiming) {
	if r.store == nil {
		return
	}
	if err := r.store.Init(); err != nil {
		r.log.Warn("run store unavailable", "error", err)
		return
	}
	meta := storage.RunMetadata{
		Mode:            string(res.Mode),
		Flowsheet:       res.Input,
		Output:          res.Output,
		Timestamp:       time.Now(),
		DurationSeconds: res.Duration.Seconds(),
		Objects:         len(series),
		Failures:        len(res.Errors),
	}
	if _, err := r.store.Save(meta, series); err != nil {
		r.log.Warn("failed to archive run", "error", err)
	}
}

func splitExt(path string) (string, string) {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext), ext
}

// timingRecorder captures the per-object series for the run archive.
type timingRecorder struct {
	series []storage.ObjectTiming
}

func (t *timingRecorder) reset()                      { t.series = nil }
func (t *timingRecorder) PassStarted(objects []string) {}
func (t *timingRecorder) ObjectStarted(name string)    {}
func (t *timingRecorder) ObjectFinished(name string, elapsed time.Duration, err error) {
	t.series = append(t.series, storage.ObjectTiming{
		Object:    name,
		ElapsedMs: float64(elapsed.Microseconds()) / 1000.0,
		Failed:    err != nil,
	})
}
func (t *timingRecorder) PassFinished(elapsed time.Duration, failures int) {}
