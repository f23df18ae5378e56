// Package states holds the built-in parser states and transition
// predicates.
package states

import (
	"fmt"
	"sync"

	"github.com/kernelci/logspec/internal/parser"
)

const commonModule = "common"

// registrations lists every built-in module.
var registrations = []func(*parser.Registry) error{
	registerCommon,
	registerGenericBoot,
	registerLinuxKernel,
	registerKbuild,
	registerTestBaseline,
	registerTestKselftest,
}

// NewRegistry returns a frozen registry holding every built-in state and
// transition.
func NewRegistry() (*parser.Registry, error) {
	reg := parser.NewRegistry()
	for _, register := range registrations {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register built-in states: %w", err)
		}
	}
	reg.Freeze()
	return reg, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *parser.Registry
)

// Default returns the shared built-in registry. It panics if the built-in
// registrations conflict.
func Default() *parser.Registry {
	defaultOnce.Do(func() {
		reg, err := NewRegistry()
		if err != nil {
			panic(err)
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// LoadParser loads parser id from the definitions at defsPath, or from the
// built-in definitions when defsPath is empty, against the default
// registry.
func LoadParser(id, defsPath string) (*parser.State, error) {
	return parser.LoadParser(Default(), id, defsPath)
}

func registerCommon(reg *parser.Registry) error {
	return reg.RegisterTransition(commonModule, "always", func(*parser.Result) bool { return true })
}
