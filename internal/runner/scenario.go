package runner

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted batch of calculation passes, loaded from yaml:
//
//	name: nightly comparison
//	steps:
//	  - flowsheet: plant.fsd
//	    mode: auto
//	  - flowsheet: plant.fsd
//	    mode: ordered
//	    timeout_seconds: 60
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single pass in a scenario. An empty mode runs both
// passes.
type ScenarioStep struct {
	Flowsheet      string `yaml:"flowsheet"`
	Mode           string `yaml:"mode"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoadScenario loads a scenario from a yaml file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// RunScenario executes all steps in order. A step's orchestration failure
// stops the batch; calculation failures are part of its results, like any
// pass.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		r.log.Info("scenario step", "step", i+1, "of", len(scenario.Steps),
			"flowsheet", step.Flowsheet, "mode", step.Mode)

		if step.Flowsheet == "" {
			return results, fmt.Errorf("step %d: no flowsheet", i+1)
		}
		saved := r.cfg.TimeoutSeconds
		if step.TimeoutSeconds > 0 {
			r.cfg.TimeoutSeconds = step.TimeoutSeconds
		}

		var (
			stepResults []*Result
			err         error
		)
		switch step.Mode {
		case "":
			stepResults, err = r.Run(ctx, step.Flowsheet)
		case string(ModeAuto), string(ModeOrdered):
			var res *Result
			res, err = r.RunPass(ctx, step.Flowsheet, Mode(step.Mode))
			if res != nil {
				stepResults = []*Result{res}
			}
		default:
			err = fmt.Errorf("unknown mode %q", step.Mode)
		}
		r.cfg.TimeoutSeconds = saved

		results = append(results, stepResults...)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	return results, nil
}
