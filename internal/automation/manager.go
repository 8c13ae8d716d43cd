// Package automation is the scripted-control surface of the simulator: a
// Manager loads and saves flowsheets, forces script blocks into unattended
// mode, and fronts the engine's calculation primitives. One Manager is
// created per flowsheet-processing pass and discarded afterward.
package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/san-kum/flowrun/internal/engine"
	"github.com/san-kum/flowrun/internal/flowsheet"
)

type Manager struct {
	// InitializeScriptEnvironment must be on for script blocks to run in a
	// headless pass; ScriptPaths is cleared so no interactive-session paths
	// leak into automation runs.
	InitializeScriptEnvironment bool
	ScriptPaths                 []string

	// CalculationTimeout bounds the incremental pass.
	CalculationTimeout time.Duration

	eng *engine.Engine
	log *slog.Logger
}

func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		CalculationTimeout: engine.DefaultTimeout,
		eng:                engine.New(log),
		log:                log,
	}
}

// Engine exposes the underlying engine for observer registration.
func (m *Manager) Engine() *engine.Engine { return m.eng }

// LoadFlowsheet loads a flowsheet document. Codec and validation errors
// propagate unwrapped; there is nothing to roll back at this point.
func (m *Manager) LoadFlowsheet(path string) (*flowsheet.Flowsheet, error) {
	m.log.Info("loading flowsheet", "path", path)
	return flowsheet.Load(path)
}

// SaveFlowsheet persists the flowsheet to path.
func (m *Manager) SaveFlowsheet(fs *flowsheet.Flowsheet, path string, compressed bool) error {
	m.log.Info("saving flowsheet", "path", path, "compressed", compressed)
	return flowsheet.Save(fs, path, compressed)
}

// EnableScriptBlocks forces every script block into a state fit for
// unattended execution: enabled, automation mode on, and the scripting
// instance cleared so the engine recreates the execution context on the
// next run. Blocks default to a disabled or interactive-only state, so a
// headless pass that skips this step silently runs no scripts.
func (m *Manager) EnableScriptBlocks(fs *flowsheet.Flowsheet) int {
	n := 0
	for _, obj := range fs.ScriptBlocks() {
		m.log.Info("enabling script block", "object", obj.Name)
		obj.Enabled = true
		obj.AutomationMode = true
		obj.ScriptingInstance = nil
		n++
	}
	return n
}

// Initialize performs the full setup for one pass: configure the script
// environment toggles, load the document, and enable its script blocks.
// There is no rollback on partial failure; a load error surfaces as-is.
func (m *Manager) Initialize(path string) (*flowsheet.Flowsheet, error) {
	m.InitializeScriptEnvironment = true
	m.ScriptPaths = nil

	fs, err := m.LoadFlowsheet(path)
	if err != nil {
		return nil, err
	}
	m.EnableScriptBlocks(fs)
	return fs, nil
}

// CalculateFlowsheet runs the incremental recalculation with the manager's
// timeout, returning per-object failures.
func (m *Manager) CalculateFlowsheet(ctx context.Context, fs *flowsheet.Flowsheet) []engine.CalcError {
	return m.eng.CalculateFlowsheet(ctx, fs, m.CalculationTimeout)
}

// RequestCalculation runs the explicit-order recalculation; its failure
// shape is a single error.
func (m *Manager) RequestCalculation(ctx context.Context, fs *flowsheet.Flowsheet, changeOrder bool) error {
	return m.eng.RequestCalculation(ctx, fs, changeOrder)
}

// ForceFullRecalculation is the stabilization pass run before either
// driver.
func (m *Manager) ForceFullRecalculation(ctx context.Context, fs *flowsheet.Flowsheet, resetFlags, reorder bool) []engine.CalcError {
	return m.eng.ForceFullRecalculation(ctx, fs, resetFlags, reorder)
}
