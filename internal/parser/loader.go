package parser

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed parser_defs.yaml
var defaultDefinitions []byte

// Definitions is a parsed parser definitions document.
type Definitions struct {
	Version string            `yaml:"version"`
	FSMs    map[string]FSMDef `yaml:"fsms"`
}

// FSMDef defines one parser.
type FSMDef struct {
	StartState string     `yaml:"start_state"`
	States     []StateDef `yaml:"states"`
}

// StateDef lists the transitions of one state.
type StateDef struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Transitions []TransitionDef `yaml:"transitions"`
}

// TransitionDef is an edge to State taken when Function holds.
type TransitionDef struct {
	Function string `yaml:"function"`
	State    string `yaml:"state"`
}

// LoadDefinitions decodes a YAML definitions document.
func LoadDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &defs, nil
}

// LoadDefinitionsFile reads and decodes a YAML definitions file.
func LoadDefinitionsFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parser definitions: %w", err)
	}
	defer f.Close()

	defs, err := LoadDefinitions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// DefaultDefinitions returns the definitions built into logspec.
func DefaultDefinitions() (*Definitions, error) {
	return LoadDefinitions(bytes.NewReader(defaultDefinitions))
}

// Parsers returns the parser ids in defs, sorted.
func (d *Definitions) Parsers() []string {
	ids := make([]string, 0, len(d.FSMs))
	for id := range d.FSMs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load resolves the FSM named id against the registry and returns its
// start state. Every call builds a new graph, so graphs loaded from
// different definitions never share transitions.
func (r *Registry) Load(defs *Definitions, id string) (*State, error) {
	if defs == nil {
		return nil, fmt.Errorf("%w: no definitions", ErrInvalidDefinition)
	}
	if defs.Version != "" {
		if err := CheckVersion(defs.Version); err != nil {
			return nil, err
		}
	}
	fsm, ok := defs.FSMs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFSMNotFound, id)
	}
	if fsm.StartState == "" {
		return nil, fmt.Errorf("parser %s: %w: no start_state", id, ErrInvalidDefinition)
	}

	if err := r.checkModule(fsm.StartState); err != nil {
		return nil, err
	}
	for _, sd := range fsm.States {
		if err := r.checkModule(sd.Name); err != nil {
			return nil, err
		}
		for _, td := range sd.Transitions {
			if err := r.checkModule(td.Function); err != nil {
				return nil, err
			}
			if err := r.checkModule(td.State); err != nil {
				return nil, err
			}
		}
	}

	nodes := make(map[string]*State)
	node := func(key string) (*State, error) {
		if n, ok := nodes[key]; ok {
			return n, nil
		}
		spec, ok := r.states[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, key)
		}
		n := &State{
			Key:         key,
			Name:        spec.Name,
			Description: spec.Description,
			fn:          spec.Func,
		}
		nodes[key] = n
		return n, nil
	}

	for _, sd := range fsm.States {
		n, err := node(sd.Name)
		if err != nil {
			return nil, err
		}
		if sd.Description != "" {
			n.Description = sd.Description
		}
		transitions := make([]Transition, 0, len(sd.Transitions))
		for _, td := range sd.Transitions {
			fn, ok := r.transitions[td.Function]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrTransitionNotFound, td.Function)
			}
			target, err := node(td.State)
			if err != nil {
				return nil, err
			}
			transitions = append(transitions, Transition{Function: td.Function, Target: target, fn: fn})
		}
		n.Transitions = transitions
	}

	return node(fsm.StartState)
}

// checkModule verifies that the module owning a "<module>.<name>" key has
// registered anything at all.
func (r *Registry) checkModule(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty state or function name", ErrInvalidDefinition)
	}
	module := key
	if i := strings.LastIndex(key, "."); i != -1 {
		module = key[:i]
	}
	if _, ok := r.modules[module]; !ok {
		return fmt.Errorf("%w: %s (referenced by %s)", ErrModuleNotFound, module, key)
	}
	return nil
}

// LoadParser loads the parser named id from the definitions file at
// defsPath, or from the built-in definitions when defsPath is empty.
func LoadParser(reg *Registry, id, defsPath string) (*State, error) {
	var (
		defs *Definitions
		err  error
	)
	if defsPath == "" {
		defs, err = DefaultDefinitions()
	} else {
		defs, err = LoadDefinitionsFile(defsPath)
	}
	if err != nil {
		return nil, err
	}
	return reg.Load(defs, id)
}
