// Package kcidb generates KCIDB issues and incidents from logspec faults.
//
// The generator queries a KCIDB results store for failed builds or tests,
// fetches and parses their logs, and emits one issue per unknown fault
// signature plus one incident per result that hit the fault.
package kcidb

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownObjectType is returned for an object type not in the table.
var ErrUnknownObjectType = errors.New("unknown object type")

// ObjectType describes how results of one kind are queried and which
// parser reads their logs.
type ObjectType struct {
	Name string
	// Query selects (id, log_url) rows. Its parameters are $1..$n.
	Query  string
	Params []any
	// Parser is the logspec parser id applied to the logs.
	Parser string
	// IncidentIDField is the incident field that references the result.
	IncidentIDField string
	// BuildValid and TestStatus are copied into generated issues when set.
	BuildValid *bool
	TestStatus string
}

var buildInvalid = false

var objectTypes = map[string]ObjectType{
	"kbuild": {
		Name:            "kbuild",
		Query:           "SELECT id, log_url FROM builds WHERE valid = $1 AND log_url IS NOT NULL",
		Params:          []any{false},
		Parser:          "kbuild",
		IncidentIDField: "build_id",
		BuildValid:      &buildInvalid,
	},
	"boot_test": {
		Name:            "boot_test",
		Query:           "SELECT id, log_url FROM tests WHERE path LIKE $1 AND status = $2 AND log_url IS NOT NULL",
		Params:          []any{"boot%", "FAIL"},
		Parser:          "generic_linux_boot",
		IncidentIDField: "test_id",
		TestStatus:      "FAIL",
	},
	"test": {
		Name:            "test",
		Query:           "SELECT id, log_url FROM tests WHERE status = $1 AND log_url IS NOT NULL",
		Params:          []any{"FAIL"},
		Parser:          "generic_linux_boot",
		IncidentIDField: "test_id",
		TestStatus:      "FAIL",
	},
}

// LookupObjectType returns the object type called name.
func LookupObjectType(name string) (ObjectType, error) {
	ot, ok := objectTypes[name]
	if !ok {
		return ObjectType{}, fmt.Errorf("%w: %q", ErrUnknownObjectType, name)
	}
	return ot, nil
}

// ObjectTypeNames returns the known object type names, sorted.
func ObjectTypeNames() []string {
	names := make([]string, 0, len(objectTypes))
	for name := range objectTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
