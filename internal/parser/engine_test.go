package parser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestParser(t *testing.T, id string) *State {
	t.Helper()
	start, err := newTestRegistry(t).Load(mustDefinitions(t, testDefinitions), id)
	require.NoError(t, err)
	return start
}

func TestParse_WalksStatesAndAdvances(t *testing.T) {
	start := loadTestParser(t, "two_stage")
	log := "boot STAGE1 middle STAGE2 tail"

	res := Parse(log, start)

	assert.Equal(t, true, res.Fields["first.done"])
	assert.Equal(t, true, res.Fields["second.done"])
	assert.Equal(t, " tail", res.Fields["window.text"])
	assert.Equal(t, strings.Index(log, "STAGE2")+len("STAGE2"), res.MatchEnd)
	assert.Equal(t, []string{"STAGE1 found", "STAGE2 found"}, res.Summary)
	assert.Equal(t, []string{"first.done", "second.done"}, res.SignatureFields)
	assert.Equal(t, faults.GenerateSignature(map[string]any{"first.done": true, "second.done": true}), res.Signature)
}

func TestParse_StopsWithoutTransition(t *testing.T) {
	start := loadTestParser(t, "two_stage")

	res := Parse("no markers at all", start)

	assert.Equal(t, false, res.Fields["first.done"])
	assert.NotContains(t, res.Fields, "second.done")
	assert.NotContains(t, res.Fields, "window.text")
	assert.Equal(t, len("no markers at all"), res.MatchEnd)
	// false checkpoints still identify the run.
	assert.Equal(t, faults.GenerateSignature(map[string]any{"first.done": false}), res.Signature)
}

func TestParse_FirstSatisfiedTransitionWins(t *testing.T) {
	start := loadTestParser(t, "ordered")

	res := Parse("STAGE1 rest", start)

	assert.Equal(t, " rest", res.Fields["window.text"])
	assert.NotContains(t, res.Fields, "other.text")
	assert.NotContains(t, res.Fields, "second.done")
}

func TestParse_CursorIsMonotonic(t *testing.T) {
	reg := NewRegistry()
	var offsets []int
	seen := 0
	require.NoError(t, reg.RegisterState("sample", "step", StateSpec{Func: func(text string) *Output {
		out := NewOutput()
		seen++
		offsets = append(offsets, len(text))
		out.Set("steps", seen)
		// Out of range offsets are clamped.
		if seen == 1 {
			out.AdvanceTo(-5)
		} else {
			out.AdvanceTo(3)
		}
		return out
	}}))
	require.NoError(t, reg.RegisterTransition("sample", "more", func(r *Result) bool { return r.Fields["steps"].(int) < 4 }))
	reg.Freeze()

	defs := mustDefinitions(t, "fsms:\n  loop:\n    start_state: sample.step\n    states:\n      - name: sample.step\n        transitions:\n          - function: sample.more\n            state: sample.step\n")
	start, err := reg.Load(defs, "loop")
	require.NoError(t, err)

	res := Parse("0123456789", start)
	assert.Equal(t, []int{10, 10, 7, 4}, offsets)
	assert.Equal(t, 9, res.MatchEnd)
	assert.Empty(t, res.Signature)
}

func TestParse_Deterministic(t *testing.T) {
	start := loadTestParser(t, "two_stage")
	log := "boot STAGE1 middle STAGE2 tail"

	first, err := Format(Parse(log, start), true)
	require.NoError(t, err)
	second, err := Format(Parse(log, start), true)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestFormat(t *testing.T) {
	start := loadTestParser(t, "two_stage")
	res := Parse("boot STAGE1 <middle> & STAGE2", start)

	out, err := Format(res, false)
	require.NoError(t, err)
	assert.Equal(t, `{
    "errors": [],
    "first.done": true,
    "second.done": true,
    "window.text": ""
}
`, string(out))

	full, err := Format(res, true)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(full, &decoded))
	assert.Equal(t, res.Signature, decoded["_signature"])
	assert.Equal(t, []any{"first.done", "second.done"}, decoded["_signature_fields"])
	assert.Equal(t, []any{"STAGE1 found", "STAGE2 found"}, decoded["_summary"])
	assert.EqualValues(t, len("boot STAGE1 <middle> & STAGE2"), decoded["_match_end"])
}

func TestResultMap_HidesPrivateFields(t *testing.T) {
	res := newResult()
	res.merge(&Output{Fields: map[string]any{"_internal": 1, "visible": "yes"}})

	assert.Equal(t, map[string]any{"visible": "yes", "errors": []any{}}, res.Map(false))
	full := res.Map(true)
	assert.Equal(t, 1, full["_internal"])
	assert.Nil(t, full["_signature"])
	assert.NotContains(t, full, "_match_end")
}

func TestResultMerge_ListsExtend(t *testing.T) {
	res := newResult()
	res.merge(&Output{Fields: map[string]any{"tags": []string{"a"}, "count": 1}})
	res.merge(&Output{Fields: map[string]any{"tags": []string{"b"}, "count": 2}})

	assert.Equal(t, []string{"a", "b"}, res.Fields["tags"])
	assert.Equal(t, 2, res.Fields["count"])
}
