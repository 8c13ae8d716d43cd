package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/san-kum/flowrun/internal/flowsheet"
)

// countingObserver tallies how often each object is recalculated.
type countingObserver struct {
	counts map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{counts: make(map[string]int)}
}

func (c *countingObserver) PassStarted(objects []string) {}
func (c *countingObserver) ObjectStarted(name string)    {}
func (c *countingObserver) ObjectFinished(name string, elapsed time.Duration, err error) {
	c.counts[name]++
}
func (c *countingObserver) PassFinished(elapsed time.Duration, failures int) {}

func (c *countingObserver) total() int {
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// testFlowsheet builds two feeds mixed, heated, and split into two products.
func testFlowsheet(t *testing.T) *flowsheet.Flowsheet {
	t.Helper()
	fs := flowsheet.New("plant")
	objs := []*flowsheet.Object{
		{Name: "feedA", Type: flowsheet.TypeMaterialStream, Enabled: true,
			Parameters: map[string]float64{"massflow": 100, "temperature": 300, "pressure": 200}},
		{Name: "feedB", Type: flowsheet.TypeMaterialStream, Enabled: true,
			Parameters: map[string]float64{"massflow": 50, "temperature": 350, "pressure": 150}},
		{Name: "mix", Type: flowsheet.TypeMixer, Enabled: true,
			Inlets: []string{"feedA", "feedB"}, Outlets: []string{"mixed"}},
		{Name: "mixed", Type: flowsheet.TypeMaterialStream, Enabled: true, Inlets: []string{"mix"}},
		{Name: "heat", Type: flowsheet.TypeHeater, Enabled: true,
			Inlets: []string{"mixed"}, Outlets: []string{"hots"},
			Parameters: map[string]float64{"duty": 627}},
		{Name: "hots", Type: flowsheet.TypeMaterialStream, Enabled: true, Inlets: []string{"heat"}},
		{Name: "split", Type: flowsheet.TypeSplitter, Enabled: true,
			Inlets: []string{"hots"}, Outlets: []string{"s1", "s2"},
			Parameters: map[string]float64{"ratio.s1": 0.25}},
		{Name: "s1", Type: flowsheet.TypeMaterialStream, Enabled: true, Inlets: []string{"split"}},
		{Name: "s2", Type: flowsheet.TypeMaterialStream, Enabled: true, Inlets: []string{"split"}},
	}
	for _, o := range objs {
		if err := fs.Add(o); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestForceFullRecalculation(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)

	errs := e.ForceFullRecalculation(context.Background(), fs, true, true)
	if len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}
	if len(fs.DirtyObjects()) != 0 {
		t.Errorf("expected all objects calculated, dirty: %v", fs.DirtyObjects())
	}
	if len(fs.CalculationOrder) != 9 {
		t.Errorf("expected stored order of 9, got %v", fs.CalculationOrder)
	}

	mix, _ := fs.Get("mix")
	if math.Abs(mix.Results["massflow"]-150) > 1e-9 {
		t.Errorf("mixer flow: expected 150, got %f", mix.Results["massflow"])
	}
	wantTemp := (100*300.0 + 50*350.0) / 150.0
	if math.Abs(mix.Results["temperature"]-wantTemp) > 1e-9 {
		t.Errorf("mixer temperature: expected %f, got %f", wantTemp, mix.Results["temperature"])
	}
	if mix.Results["pressure"] != 150 {
		t.Errorf("mixer pressure: expected 150, got %f", mix.Results["pressure"])
	}

	// duty 627 over 150 kg/s at cp 4.18 is +1 K
	hots, _ := fs.Get("hots")
	if math.Abs(hots.Results["temperature"]-(wantTemp+1)) > 1e-6 {
		t.Errorf("heated temperature: expected %f, got %f", wantTemp+1, hots.Results["temperature"])
	}

	s1, _ := fs.Get("s1")
	s2, _ := fs.Get("s2")
	if math.Abs(s1.Results["massflow"]-37.5) > 1e-9 {
		t.Errorf("s1 flow: expected 37.5, got %f", s1.Results["massflow"])
	}
	if math.Abs(s2.Results["massflow"]-112.5) > 1e-9 {
		t.Errorf("s2 flow: expected 112.5, got %f", s2.Results["massflow"])
	}
}

func TestIncrementalSkipsCleanObjects(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	if errs := e.ForceFullRecalculation(context.Background(), fs, true, true); len(errs) != 0 {
		t.Fatalf("baseline failed: %v", errs)
	}

	obs := newCountingObserver()
	e.AddObserver(obs)

	errs := e.CalculateFlowsheet(context.Background(), fs, 0)
	if len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}
	if obs.total() != 0 {
		t.Errorf("expected no recalculations on a clean flowsheet, got %v", obs.counts)
	}
}

func TestFullInvalidateRecalculatesEachOnce(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	obs := newCountingObserver()
	e.AddObserver(obs)

	fs.ClearAllCalculatedFlags()
	errs := e.CalculateFlowsheet(context.Background(), fs, 0)
	if len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}

	for _, obj := range fs.SimulationObjects() {
		if obs.counts[obj.Name] != 1 {
			t.Errorf("object %s calculated %d times, expected 1", obj.Name, obs.counts[obj.Name])
		}
		if !obj.Calculated {
			t.Errorf("object %s still dirty", obj.Name)
		}
	}
}

func TestPartialInvalidateRecalculatesClosure(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	if errs := e.ForceFullRecalculation(context.Background(), fs, true, true); len(errs) != 0 {
		t.Fatalf("baseline failed: %v", errs)
	}

	heat, _ := fs.Get("heat")
	heat.Calculated = false

	obs := newCountingObserver()
	e.AddObserver(obs)
	if errs := e.CalculateFlowsheet(context.Background(), fs, 0); len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}

	wantVisited := []string{"heat", "hots", "split", "s1", "s2"}
	for _, name := range wantVisited {
		if obs.counts[name] != 1 {
			t.Errorf("expected %s recalculated once, got %d", name, obs.counts[name])
		}
	}
	for _, name := range []string{"feedA", "feedB", "mix", "mixed"} {
		if obs.counts[name] != 0 {
			t.Errorf("did not expect %s recalculated", name)
		}
	}
}

func TestAutoAndOrderedConverge(t *testing.T) {
	auto := testFlowsheet(t)
	ordered := testFlowsheet(t)
	e := New(nil)

	auto.ClearAllCalculatedFlags()
	if errs := e.CalculateFlowsheet(context.Background(), auto, 0); len(errs) != 0 {
		t.Fatalf("auto pass failed: %v", errs)
	}

	ordered.ClearAllCalculatedFlags()
	if err := e.RequestCalculation(context.Background(), ordered, true); err != nil {
		t.Fatalf("ordered pass failed: %v", err)
	}

	for _, want := range auto.SimulationObjects() {
		got, _ := ordered.Get(want.Name)
		for key, v := range want.Results {
			if math.Abs(got.Results[key]-v) > 1e-9 {
				t.Errorf("%s.%s: auto %f vs ordered %f", want.Name, key, v, got.Results[key])
			}
		}
	}
}

func TestUpstreamFailureSkipsDownstream(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	e.Registry().Register(flowsheet.TypeHeater, func(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
		return fmt.Errorf("convergence failure")
	})

	fs.ClearAllCalculatedFlags()
	errs := e.CalculateFlowsheet(context.Background(), fs, 0)

	// heat itself plus hots, split, s1, s2 as unresolved dependencies
	if len(errs) != 5 {
		t.Fatalf("expected 5 failures, got %d: %v", len(errs), errs)
	}

	mix, _ := fs.Get("mix")
	if !mix.Calculated {
		t.Error("expected mix calculated despite downstream failure")
	}
	for _, name := range []string{"heat", "hots", "s1", "s2"} {
		obj, _ := fs.Get(name)
		if obj.Calculated {
			t.Errorf("expected %s left dirty", name)
		}
	}
}

func TestTimeoutAbortsPass(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	e.Registry().Register(flowsheet.TypeMaterialStream, func(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
		time.Sleep(30 * time.Millisecond)
		obj.SetResult("massflow", obj.Param("massflow", 0))
		return nil
	})

	fs.ClearAllCalculatedFlags()
	errs := e.CalculateFlowsheet(context.Background(), fs, 50*time.Millisecond)

	if len(errs) == 0 {
		t.Fatal("expected a timeout failure")
	}
	last := errs[len(errs)-1]
	if !errors.Is(last.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", last.Err)
	}
	if len(fs.DirtyObjects()) == 0 {
		t.Error("expected partial results, everything calculated")
	}
}

func TestRequestCalculationRequiresOrder(t *testing.T) {
	fs := testFlowsheet(t)
	err := New(nil).RequestCalculation(context.Background(), fs, false)
	if err == nil {
		t.Fatal("expected error without a stored calculation order")
	}
}

func TestRequestCalculationRejectsStaleOrder(t *testing.T) {
	fs := testFlowsheet(t)
	fs.CalculationOrder = []string{"feedA", "removed_unit"}
	err := New(nil).RequestCalculation(context.Background(), fs, false)
	if err == nil {
		t.Fatal("expected error for order naming a missing object")
	}
}

func TestRequestCalculationWrapsFailures(t *testing.T) {
	fs := testFlowsheet(t)
	e := New(nil)
	e.Registry().Register(flowsheet.TypeMixer, func(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
		return fmt.Errorf("mass balance violated")
	})

	fs.ClearAllCalculatedFlags()
	err := e.RequestCalculation(context.Background(), fs, true)
	if err == nil {
		t.Fatal("expected wrapped failure")
	}
}

func TestScriptBlockCalculation(t *testing.T) {
	fs := testFlowsheet(t)
	block := &flowsheet.Object{
		Name: "monitor", Type: flowsheet.TypeScriptBlock, Enabled: true,
		Inlets:     []string{"hots"},
		Parameters: map[string]float64{"target": 320},
		Script:     `approach = in["hots"].temperature - params.target`,
	}
	if err := fs.Add(block); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	if errs := e.ForceFullRecalculation(context.Background(), fs, true, true); len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}

	hots, _ := fs.Get("hots")
	want := hots.Results["temperature"] - 320
	if math.Abs(block.Results["approach"]-want) > 1e-9 {
		t.Errorf("expected approach %f, got %f", want, block.Results["approach"])
	}
	if block.ScriptingInstance == nil {
		t.Error("expected compiled scripting instance to be retained")
	}
}

func TestDisabledScriptBlockSkipped(t *testing.T) {
	fs := testFlowsheet(t)
	block := &flowsheet.Object{
		Name: "monitor", Type: flowsheet.TypeScriptBlock, Enabled: false,
		Script: `x = 1`,
	}
	if err := fs.Add(block); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	if errs := e.ForceFullRecalculation(context.Background(), fs, true, true); len(errs) != 0 {
		t.Fatalf("unexpected failures: %v", errs)
	}
	if len(block.Results) != 0 {
		t.Errorf("expected no results for disabled block, got %v", block.Results)
	}
}

func TestCycleDetected(t *testing.T) {
	fs := flowsheet.New("loop")
	fs.Add(&flowsheet.Object{Name: "a", Type: flowsheet.TypeMixer, Enabled: true, Inlets: []string{"b"}})
	fs.Add(&flowsheet.Object{Name: "b", Type: flowsheet.TypeMixer, Enabled: true, Inlets: []string{"a"}})

	errs := New(nil).CalculateFlowsheet(context.Background(), fs, 0)
	if len(errs) != 1 {
		t.Fatalf("expected single cycle error, got %v", errs)
	}
}
