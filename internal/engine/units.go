package engine

import (
	"fmt"
	"math"

	"github.com/san-kum/flowrun/internal/flowsheet"
	"github.com/san-kum/flowrun/internal/script"
)

// Default stream conditions and specific heat used when a flowsheet leaves
// them unspecified.
const (
	DefaultTemperature = 298.15  // K
	DefaultPressure    = 101.325 // kPa
	DefaultCp          = 4.18    // kJ/(kg·K)
)

func inletObjects(fs *flowsheet.Flowsheet, obj *flowsheet.Object) ([]*flowsheet.Object, error) {
	inlets := make([]*flowsheet.Object, 0, len(obj.Inlets))
	for _, name := range obj.Inlets {
		in, ok := fs.Get(name)
		if !ok {
			return nil, fmt.Errorf("inlet %s does not exist", name)
		}
		inlets = append(inlets, in)
	}
	return inlets, nil
}

func singleInlet(fs *flowsheet.Flowsheet, obj *flowsheet.Object) (*flowsheet.Object, error) {
	inlets, err := inletObjects(fs, obj)
	if err != nil {
		return nil, err
	}
	if len(inlets) != 1 {
		return nil, fmt.Errorf("expected exactly one inlet, got %d", len(inlets))
	}
	return inlets[0], nil
}

// portFlow returns the mass flow an upstream object delivers to the named
// outlet. Units with per-outlet flows (splitters) publish them under
// "massflow@<outlet>"; everything else publishes a single "massflow".
func portFlow(upstream *flowsheet.Object, outlet string) float64 {
	if v, ok := upstream.Results["massflow@"+outlet]; ok {
		return v
	}
	return upstream.Results["massflow"]
}

// calcStream resolves a material stream. A stream with no inlet is a feed
// and takes its conditions from its own parameters; a connected stream
// mirrors the conditions of the unit feeding it.
func calcStream(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	if len(obj.Inlets) == 0 {
		obj.SetResult("massflow", obj.Param("massflow", 0))
		obj.SetResult("temperature", obj.Param("temperature", DefaultTemperature))
		obj.SetResult("pressure", obj.Param("pressure", DefaultPressure))
		return nil
	}

	in, err := singleInlet(fs, obj)
	if err != nil {
		return err
	}
	obj.SetResult("massflow", portFlow(in, obj.Name))
	obj.SetResult("temperature", in.Results["temperature"])
	obj.SetResult("pressure", in.Results["pressure"])
	return nil
}

// calcMixer combines inlet streams: flows add, temperature is flow-weighted,
// pressure is the lowest inlet pressure.
func calcMixer(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	inlets, err := inletObjects(fs, obj)
	if err != nil {
		return err
	}
	if len(inlets) == 0 {
		return fmt.Errorf("mixer has no inlets")
	}

	var flow, weighted float64
	pressure := math.Inf(1)
	for _, in := range inlets {
		f := in.Results["massflow"]
		flow += f
		weighted += f * in.Results["temperature"]
		if p := in.Results["pressure"]; p < pressure {
			pressure = p
		}
	}

	temp := DefaultTemperature
	if flow > 0 {
		temp = weighted / flow
	}
	obj.SetResult("massflow", flow)
	obj.SetResult("temperature", temp)
	obj.SetResult("pressure", pressure)
	return nil
}

// calcSplitter divides the inlet flow across its outlets. Split fractions
// come from "ratio.<outlet>" parameters; outlets without one share the
// remainder equally.
func calcSplitter(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	in, err := singleInlet(fs, obj)
	if err != nil {
		return err
	}
	if len(obj.Outlets) == 0 {
		return fmt.Errorf("splitter has no outlets")
	}

	flow := in.Results["massflow"]
	assigned := 0.0
	unassigned := 0
	for _, out := range obj.Outlets {
		if r, ok := obj.Parameters["ratio."+out]; ok {
			assigned += r
		} else {
			unassigned++
		}
	}
	if assigned > 1.0+1e-9 {
		return fmt.Errorf("split ratios sum to %.3f, above 1", assigned)
	}

	rest := 0.0
	if unassigned > 0 {
		rest = (1 - assigned) / float64(unassigned)
	}
	for _, out := range obj.Outlets {
		r, ok := obj.Parameters["ratio."+out]
		if !ok {
			r = rest
		}
		obj.SetResult("massflow@"+out, flow*r)
	}
	obj.SetResult("massflow", flow)
	obj.SetResult("temperature", in.Results["temperature"])
	obj.SetResult("pressure", in.Results["pressure"])
	return nil
}

func applyDuty(fs *flowsheet.Flowsheet, obj *flowsheet.Object, duty float64) error {
	in, err := singleInlet(fs, obj)
	if err != nil {
		return err
	}
	flow := in.Results["massflow"]
	if flow <= 0 {
		return fmt.Errorf("zero mass flow, cannot apply duty")
	}
	cp := obj.Param("cp", DefaultCp)
	obj.SetResult("massflow", flow)
	obj.SetResult("temperature", in.Results["temperature"]+duty/(flow*cp))
	obj.SetResult("pressure", in.Results["pressure"]-obj.Param("pressure_drop", 0))
	return nil
}

func calcHeater(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	return applyDuty(fs, obj, obj.Param("duty", 0))
}

func calcCooler(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	return applyDuty(fs, obj, -obj.Param("duty", 0))
}

// calcValve drops pressure: either to an explicit outlet_pressure or by
// pressure_drop. Flow and temperature pass through.
func calcValve(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	in, err := singleInlet(fs, obj)
	if err != nil {
		return err
	}
	pOut := in.Results["pressure"] - obj.Param("pressure_drop", 0)
	if v, ok := obj.Parameters["outlet_pressure"]; ok {
		pOut = v
	}
	if pOut > in.Results["pressure"] {
		return fmt.Errorf("outlet pressure %.3f above inlet %.3f", pOut, in.Results["pressure"])
	}
	obj.SetResult("massflow", in.Results["massflow"])
	obj.SetResult("temperature", in.Results["temperature"])
	obj.SetResult("pressure", pOut)
	return nil
}

// calcScriptBlock runs the block's compiled program against its parameters
// and inlet results. Disabled blocks are skipped, never errors; the
// scripting instance is compiled on first use and survives until the
// enabling pass resets it.
func calcScriptBlock(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error {
	if !obj.Enabled {
		return nil
	}

	prog, ok := obj.ScriptingInstance.(*script.Program)
	if !ok || prog == nil {
		var err error
		prog, err = script.Compile(obj.Script)
		if err != nil {
			return fmt.Errorf("compile script: %w", err)
		}
		obj.ScriptingInstance = prog
	}

	inlets, err := inletObjects(fs, obj)
	if err != nil {
		return err
	}
	env := script.Env{
		Params: obj.Parameters,
		Inlets: make(map[string]map[string]float64, len(inlets)),
	}
	for _, in := range inlets {
		env.Inlets[in.Name] = in.Results
	}

	out, err := prog.Run(env)
	if err != nil {
		return err
	}
	for k, v := range out {
		obj.SetResult(k, v)
	}
	return nil
}
