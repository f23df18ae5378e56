package parser

import (
	"fmt"
	"sort"
	"strings"
)

// StateFunc parses the remaining log text for one stage and reports what
// it found.
type StateFunc func(text string) *Output

// Predicate decides whether a transition is taken, given the result
// accumulated so far.
type Predicate func(r *Result) bool

// StateSpec describes a registered state.
type StateSpec struct {
	Name        string
	Description string
	Func        StateFunc
}

// Registry maps "<module>.<name>" keys to state functions and transition
// predicates.
//
// A Registry is filled by a single goroutine and then frozen. After Freeze
// it is read-only and safe for concurrent use.
type Registry struct {
	states      map[string]StateSpec
	transitions map[string]Predicate
	modules     map[string]struct{}
	frozen      bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states:      make(map[string]StateSpec),
		transitions: make(map[string]Predicate),
		modules:     make(map[string]struct{}),
	}
}

// RegisterState registers a state function under module.name.
func (r *Registry) RegisterState(module, name string, spec StateSpec) error {
	key, err := r.claim(module, name)
	if err != nil {
		return err
	}
	if _, ok := r.states[key]; ok {
		return fmt.Errorf("state %s: %w", key, ErrDuplicate)
	}
	if spec.Func == nil {
		return fmt.Errorf("state %s: %w: no state function", key, ErrInvalidDefinition)
	}
	r.states[key] = spec
	r.modules[module] = struct{}{}
	return nil
}

// RegisterTransition registers a transition predicate under module.name.
func (r *Registry) RegisterTransition(module, name string, fn Predicate) error {
	key, err := r.claim(module, name)
	if err != nil {
		return err
	}
	if _, ok := r.transitions[key]; ok {
		return fmt.Errorf("transition %s: %w", key, ErrDuplicate)
	}
	if fn == nil {
		return fmt.Errorf("transition %s: %w: no predicate", key, ErrInvalidDefinition)
	}
	r.transitions[key] = fn
	r.modules[module] = struct{}{}
	return nil
}

func (r *Registry) claim(module, name string) (string, error) {
	key := module + "." + name
	if r.frozen {
		return "", fmt.Errorf("registering %s: %w", key, ErrFrozen)
	}
	if module == "" || name == "" || strings.Contains(module, ".") {
		return "", fmt.Errorf("registering %q: %w: malformed name", key, ErrInvalidDefinition)
	}
	return key, nil
}

// Freeze ends the build phase. Registration fails afterwards.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// States returns the registered state keys, sorted.
func (r *Registry) States() []string {
	keys := make([]string, 0, len(r.states))
	for k := range r.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Transitions returns the registered transition keys, sorted.
func (r *Registry) Transitions() []string {
	keys := make([]string, 0, len(r.transitions))
	for k := range r.transitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State is a node of a loaded FSM.
type State struct {
	Key         string
	Name        string
	Description string
	Transitions []Transition

	fn StateFunc
}

// Transition is an outgoing edge of a State.
type Transition struct {
	Function string
	Target   *State

	fn Predicate
}

// Run runs the state function on text.
func (s *State) Run(text string) *Output {
	out := s.fn(text)
	if out == nil {
		out = NewOutput()
	}
	return out
}

// Next returns the target of the first transition whose predicate holds,
// or nil when none does.
func (s *State) Next(r *Result) *State {
	for _, t := range s.Transitions {
		if t.fn(r) {
			return t.Target
		}
	}
	return nil
}

func (s *State) String() string {
	if s.Name == "" {
		return s.Key
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Key)
}
