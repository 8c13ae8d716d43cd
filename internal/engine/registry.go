package engine

import (
	"fmt"

	"github.com/san-kum/flowrun/internal/flowsheet"
)

// Calculator computes one object's results from its parameters and the
// results of its inlet objects, then is responsible for nothing else; the
// engine owns flags, ordering, and error collection.
type Calculator func(fs *flowsheet.Flowsheet, obj *flowsheet.Object) error

type Registry struct {
	calculators map[flowsheet.ObjectType]Calculator
}

func NewRegistry() *Registry {
	r := &Registry{calculators: make(map[flowsheet.ObjectType]Calculator)}

	r.calculators[flowsheet.TypeMaterialStream] = calcStream
	r.calculators[flowsheet.TypeMixer] = calcMixer
	r.calculators[flowsheet.TypeSplitter] = calcSplitter
	r.calculators[flowsheet.TypeHeater] = calcHeater
	r.calculators[flowsheet.TypeCooler] = calcCooler
	r.calculators[flowsheet.TypeValve] = calcValve
	r.calculators[flowsheet.TypeScriptBlock] = calcScriptBlock

	return r
}

// Register installs or replaces the calculator for a type.
func (r *Registry) Register(t flowsheet.ObjectType, c Calculator) {
	r.calculators[t] = c
}

func (r *Registry) Get(t flowsheet.ObjectType) (Calculator, error) {
	c, ok := r.calculators[t]
	if !ok {
		return nil, fmt.Errorf("no calculator for type: %s", t)
	}
	return c, nil
}
