package flowsheet

import (
	"fmt"
	"sort"
)

// ObjectType identifies the kind of simulation object.
type ObjectType string

const (
	TypeMaterialStream ObjectType = "material_stream"
	TypeMixer          ObjectType = "mixer"
	TypeSplitter       ObjectType = "splitter"
	TypeHeater         ObjectType = "heater"
	TypeCooler         ObjectType = "cooler"
	TypeValve          ObjectType = "valve"
	TypeScriptBlock    ObjectType = "script_block"
)

var knownTypes = map[ObjectType]bool{
	TypeMaterialStream: true,
	TypeMixer:          true,
	TypeSplitter:       true,
	TypeHeater:         true,
	TypeCooler:         true,
	TypeValve:          true,
	TypeScriptBlock:    true,
}

// Object is a single simulation object inside a flowsheet. Calculated marks
// whether its Results are current; it persists across save/load so a second
// run can skip objects a previous run already solved.
type Object struct {
	Name           string             `yaml:"name"`
	Type           ObjectType         `yaml:"type"`
	Enabled        bool               `yaml:"enabled"`
	AutomationMode bool               `yaml:"automation_mode,omitempty"`
	Calculated     bool               `yaml:"calculated"`
	Inlets         []string           `yaml:"inlets,omitempty"`
	Outlets        []string           `yaml:"outlets,omitempty"`
	Parameters     map[string]float64 `yaml:"parameters,omitempty"`
	Results        map[string]float64 `yaml:"results,omitempty"`
	Script         string             `yaml:"script,omitempty"`

	// ScriptingInstance holds the compiled script context for script blocks.
	// It is never persisted; the enabling pass resets it to nil so the
	// runtime recreates the execution context on the next run.
	ScriptingInstance any `yaml:"-"`
}

// Param returns a parameter value or a default when unset.
func (o *Object) Param(key string, def float64) float64 {
	if v, ok := o.Parameters[key]; ok {
		return v
	}
	return def
}

// SetResult stores a computed result value, allocating the map on first use.
func (o *Object) SetResult(key string, v float64) {
	if o.Results == nil {
		o.Results = make(map[string]float64)
	}
	o.Results[key] = v
}

// Flowsheet is a simulation document: objects plus an optional stored
// calculation order. Path records where the document was loaded from.
type Flowsheet struct {
	Name             string    `yaml:"name"`
	Objects          []*Object `yaml:"objects"`
	CalculationOrder []string  `yaml:"calculation_order,omitempty"`

	Path  string             `yaml:"-"`
	index map[string]*Object `yaml:"-"`
}

// New creates an empty flowsheet with the given name.
func New(name string) *Flowsheet {
	return &Flowsheet{Name: name, index: make(map[string]*Object)}
}

// Add appends an object and indexes it by name.
func (fs *Flowsheet) Add(obj *Object) error {
	if fs.index == nil {
		fs.index = make(map[string]*Object)
	}
	if _, exists := fs.index[obj.Name]; exists {
		return fmt.Errorf("duplicate object name: %s", obj.Name)
	}
	fs.Objects = append(fs.Objects, obj)
	fs.index[obj.Name] = obj
	return nil
}

// Get returns the simulation object with the given name.
func (fs *Flowsheet) Get(name string) (*Object, bool) {
	obj, ok := fs.index[name]
	return obj, ok
}

// SimulationObjects returns all objects in document order.
func (fs *Flowsheet) SimulationObjects() []*Object {
	return fs.Objects
}

// ScriptBlocks returns the script blocks in document order.
func (fs *Flowsheet) ScriptBlocks() []*Object {
	var blocks []*Object
	for _, obj := range fs.Objects {
		if obj.Type == TypeScriptBlock {
			blocks = append(blocks, obj)
		}
	}
	return blocks
}

// ClearAllCalculatedFlags marks every object dirty, forcing the next
// incremental pass to recompute the whole document.
func (fs *Flowsheet) ClearAllCalculatedFlags() {
	for _, obj := range fs.Objects {
		obj.Calculated = false
	}
}

// DirtyObjects returns the names of objects whose flag is false, sorted.
func (fs *Flowsheet) DirtyObjects() []string {
	var names []string
	for _, obj := range fs.Objects {
		if !obj.Calculated {
			names = append(names, obj.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks internal consistency: known types, unique names, and
// connection references that resolve to real objects. The stored
// calculation order is deliberately not checked here; a stale order is an
// error at use time, when the ordered pass applies it.
func (fs *Flowsheet) Validate() error {
	seen := make(map[string]bool, len(fs.Objects))
	for _, obj := range fs.Objects {
		if obj.Name == "" {
			return fmt.Errorf("object with empty name")
		}
		if seen[obj.Name] {
			return fmt.Errorf("duplicate object name: %s", obj.Name)
		}
		seen[obj.Name] = true
		if !knownTypes[obj.Type] {
			return fmt.Errorf("object %s: unknown type %q", obj.Name, obj.Type)
		}
	}
	for _, obj := range fs.Objects {
		for _, in := range obj.Inlets {
			if !seen[in] {
				return fmt.Errorf("object %s: inlet %q does not exist", obj.Name, in)
			}
		}
		for _, out := range obj.Outlets {
			if !seen[out] {
				return fmt.Errorf("object %s: outlet %q does not exist", obj.Name, out)
			}
		}
	}
	return nil
}

func (fs *Flowsheet) reindex() {
	fs.index = make(map[string]*Object, len(fs.Objects))
	for _, obj := range fs.Objects {
		fs.index[obj.Name] = obj
	}
}
