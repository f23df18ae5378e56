package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefinitions = `version: "0.2.0"
fsms:
  two_stage:
    start_state: sample.first
    states:
      - name: sample.first
        description: First stage
        transitions:
          - function: sample.first_done
            state: sample.second
      - name: sample.second
        transitions:
          - function: sample.second_done
            state: sample.window
  ordered:
    start_state: sample.first
    states:
      - name: sample.first
        transitions:
          - function: sample.never
            state: sample.second
          - function: sample.always
            state: sample.window
          - function: sample.always
            state: other.window
`

func mustDefinitions(t *testing.T, doc string) *Definitions {
	t.Helper()
	defs, err := LoadDefinitions(strings.NewReader(doc))
	require.NoError(t, err)
	return defs
}

func TestLoad(t *testing.T) {
	reg := newTestRegistry(t)
	defs := mustDefinitions(t, testDefinitions)

	start, err := reg.Load(defs, "two_stage")
	require.NoError(t, err)
	assert.Equal(t, "sample.first", start.Key)
	assert.Equal(t, "First stage", start.Description)
	require.Len(t, start.Transitions, 1)
	assert.Equal(t, "sample.first_done", start.Transitions[0].Function)

	second := start.Transitions[0].Target
	assert.Equal(t, "sample.second", second.Key)
	assert.Equal(t, "Second (sample.second)", second.String())
	require.Len(t, second.Transitions, 1)
	assert.Equal(t, "sample.window", second.Transitions[0].Target.Key)
}

func TestLoad_GraphsAreIndependent(t *testing.T) {
	reg := newTestRegistry(t)
	defs := mustDefinitions(t, testDefinitions)

	twoStage, err := reg.Load(defs, "two_stage")
	require.NoError(t, err)
	ordered, err := reg.Load(defs, "ordered")
	require.NoError(t, err)

	assert.NotSame(t, twoStage, ordered)
	require.Len(t, twoStage.Transitions, 1)
	require.Len(t, ordered.Transitions, 3)

	again, err := reg.Load(defs, "two_stage")
	require.NoError(t, err)
	assert.NotSame(t, twoStage, again)
	assert.Len(t, again.Transitions, 1)
}

func TestLoad_Errors(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name    string
		doc     string
		id      string
		wantErr error
	}{
		{
			name:    "Version mismatch",
			doc:     "version: \"0.3.0\"\nfsms:\n  p:\n    start_state: sample.first\n",
			id:      "p",
			wantErr: ErrVersionMismatch,
		},
		{
			name:    "Malformed version",
			doc:     "version: \"two\"\nfsms:\n  p:\n    start_state: sample.first\n",
			id:      "p",
			wantErr: ErrInvalidDefinition,
		},
		{
			name:    "Unknown parser",
			doc:     testDefinitions,
			id:      "nope",
			wantErr: ErrFSMNotFound,
		},
		{
			name:    "Unknown module",
			doc:     "fsms:\n  p:\n    start_state: missing.first\n    states:\n      - name: missing.first\n",
			id:      "p",
			wantErr: ErrModuleNotFound,
		},
		{
			name:    "Unknown state",
			doc:     "fsms:\n  p:\n    start_state: sample.first\n    states:\n      - name: sample.first\n        transitions:\n          - function: sample.always\n            state: sample.third\n",
			id:      "p",
			wantErr: ErrStateNotFound,
		},
		{
			name:    "Unknown transition",
			doc:     "fsms:\n  p:\n    start_state: sample.first\n    states:\n      - name: sample.first\n        transitions:\n          - function: sample.sometimes\n            state: sample.second\n",
			id:      "p",
			wantErr: ErrTransitionNotFound,
		},
		{
			name:    "Missing start state",
			doc:     "fsms:\n  p:\n    states:\n      - name: sample.first\n",
			id:      "p",
			wantErr: ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs := mustDefinitions(t, tt.doc)
			_, err := reg.Load(defs, tt.id)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingVersionIsAccepted(t *testing.T) {
	reg := newTestRegistry(t)
	defs := mustDefinitions(t, "fsms:\n  p:\n    start_state: sample.window\n")

	start, err := reg.Load(defs, "p")
	require.NoError(t, err)
	assert.Equal(t, "sample.window", start.Key)
	assert.Empty(t, start.Transitions)
}

func TestLoadDefinitions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "Empty document", doc: ""},
		{name: "Not YAML", doc: "fsms: [unterminated"},
		{name: "Unknown key", doc: "fsms:\n  p:\n    start-state: sample.first\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinitions(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestLoadDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parser_defs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDefinitions), 0644))

	defs, err := LoadDefinitionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ordered", "two_stage"}, defs.Parsers())

	_, err = LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultDefinitions(t *testing.T) {
	defs, err := DefaultDefinitions()
	require.NoError(t, err)
	require.NoError(t, CheckVersion(defs.Version))
	assert.Equal(t, []string{"generic_linux_boot", "kbuild", "test_baseline", "test_kselftest"}, defs.Parsers())
}

func TestCheckVersion(t *testing.T) {
	require.NoError(t, CheckVersion("0.2.0"))
	require.NoError(t, CheckVersion("1.2.7"))
	require.ErrorIs(t, CheckVersion("0.1.0"), ErrVersionMismatch)
	require.ErrorIs(t, CheckVersion("0.2"), ErrInvalidDefinition)
	require.ErrorIs(t, CheckVersion("0.x.0"), ErrInvalidDefinition)
}
