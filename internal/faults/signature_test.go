package faults

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "Sorted keys", input: map[string]any{"b": 1, "a": "x"}, expected: `{"a": "x", "b": 1}`},
		{name: "Nested", input: map[string]any{"b": []any{1, "é\n"}, "a": map[string]any{"z": true, "y": nil}}, expected: `{"a": {"y": null, "z": true}, "b": [1, "é\n"]}`},
		{name: "Control characters", input: "tab\there\x01", expected: `"tab\there\u0001"`},
		{name: "Quotes and backslashes", input: `say "hi" \o/`, expected: `"say \"hi\" \\o/"`},
		{name: "String list", input: []string{"a", "b"}, expected: `["a", "b"]`},
		{name: "Number", input: json.Number("42"), expected: `42`},
		{name: "HTML is not escaped", input: "<a&b>", expected: `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_UnsupportedType(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
	assert.Equal(t, "", GenerateSignature(3.5))
}

func TestGenerateSignature(t *testing.T) {
	// Digests produced by json.dumps(..., sort_keys=True, ensure_ascii=False).
	assert.Equal(t, "96a903b747ec39399140eb2d672d57f4fd1819a8",
		GenerateSignature(map[string]any{"b": []any{1, "é\n"}, "a": map[string]any{"z": true, "y": nil}}))
	assert.Equal(t, "721516cb40a17ba5aaddc2e6e410d3eec5c49fc6",
		GenerateSignature(map[string]any{"bootloader.done": true, "linux.boot.kernel_started": true, "linux.boot.prompt": true}))
	assert.Equal(t, "963438d8ea8d93c35ee80856131c675dd41fe15c",
		GenerateSignature([]any{"42", "_:abc", "logspec:0.2.0"}))
}
