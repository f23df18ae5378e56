// Package faults models the structured fault records extracted from CI logs
// and the regex heuristics that find them.
package faults

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LinuxTimestamp matches the bracketed timestamp that prefixes kernel log lines.
// Format: [    1.234567]
const LinuxTimestamp = `\[[ \d.]+\]`

// kernelLine matches a timestamp plus the optional printk caller id.
// Format: [    1.234567][    T1]
const kernelLine = LinuxTimestamp + `(?:\[ *[CT]\d+\])?`

// Error is a fault record found in a log.
// Only the variants defined in this package implement it.
type Error interface {
	// Type returns the dotted taxonomy string, e.g. "kbuild.compiler.error".
	Type() string
	// Summary returns the one-line description of the fault.
	Summary() string
	// Report returns the log excerpt the fault was extracted from.
	Report() string
	// Signature returns the SHA-1 over the significant fields, or "".
	Signature() string
	// SignatureFields returns the names of the significant fields.
	SignatureFields() []string

	base() *Base
	parse(text string) int
}

// Base holds the fields shared by every fault variant.
type Base struct {
	ErrorType     string   `json:"error_type"`
	ErrorSummary  string   `json:"error_summary"`
	Excerpt       string   `json:"_report"`
	SignatureKeys []string `json:"_signature_fields"`
	Digest        string   `json:"_signature"`
}

func newBase(errorType string, extra ...string) Base {
	keys := append([]string{"error_type", "error_summary"}, extra...)
	return Base{ErrorType: errorType, SignatureKeys: keys}
}

func (b *Base) Type() string              { return b.ErrorType }
func (b *Base) Summary() string           { return b.ErrorSummary }
func (b *Base) Report() string            { return b.Excerpt }
func (b *Base) Signature() string         { return b.Digest }
func (b *Base) SignatureFields() []string { return b.SignatureKeys }
func (b *Base) base() *Base               { return b }

// Parse runs the extraction of e over text and then computes its signature.
// It returns the offset in text where the fault ends.
func Parse(e Error, text string) int {
	end := e.parse(text)
	b := e.base()
	all := toMap(e)
	significant := make(map[string]any)
	for _, key := range b.SignatureKeys {
		if v, ok := all[key]; ok && !IsEmpty(v) {
			significant[key] = v
		}
	}
	b.Digest = ""
	if len(significant) > 0 {
		b.Digest = GenerateSignature(significant)
	}
	return end
}

// Fields returns the serialized form of e. Hidden keys (prefixed with "_")
// are only kept when full is set.
func Fields(e Error, full bool) map[string]any {
	m := toMap(e)
	if !full {
		for k := range m {
			if strings.HasPrefix(k, "_") {
				delete(m, k)
			}
		}
	}
	return m
}

func toMap(e Error) map[string]any {
	data, err := json.Marshal(e)
	if err != nil {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return map[string]any{}
	}
	return m
}

// IsEmpty reports whether a serialized field value is null, false, zero or
// an empty string, list or object. Empty fields never take part in a
// signature.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

// Finder locates the first fault of one domain in text and returns it with
// the offset where it ends.
type Finder func(text string) (Error, int, bool)

// FindAll runs find repeatedly over text, resuming after each fault.
func FindAll(text string, find Finder) []Error {
	var found []Error
	for text != "" {
		e, end, ok := find(text)
		if !ok || end <= 0 {
			break
		}
		found = append(found, e)
		text = text[min(end, len(text)):]
	}
	return found
}
