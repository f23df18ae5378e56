package parser

import (
	"slices"
	"strings"

	"github.com/kernelci/logspec/internal/faults"
)

// Output is what a single state reports.
type Output struct {
	// Fields are the named checkpoint values found by the state.
	Fields map[string]any
	// Errors are the faults found by the state, in log order.
	Errors []faults.Error
	// SignatureFields names the Fields that identify the run.
	SignatureFields []string
	// Summary is a one-line description of what the state saw.
	Summary string

	matchEnd    int
	hasMatchEnd bool
}

// NewOutput returns an empty Output whose given fields are significant.
func NewOutput(signatureFields ...string) *Output {
	return &Output{
		Fields:          make(map[string]any),
		SignatureFields: signatureFields,
	}
}

// Set records a field value.
func (o *Output) Set(key string, value any) {
	o.Fields[key] = value
}

// AdvanceTo marks offset, relative to the text the state received, as the
// point where the next state starts.
func (o *Output) AdvanceTo(offset int) {
	o.matchEnd = offset
	o.hasMatchEnd = true
}

// MatchEnd returns the offset set by AdvanceTo.
func (o *Output) MatchEnd() (int, bool) {
	return o.matchEnd, o.hasMatchEnd
}

// Result is the accumulated outcome of parsing one log. MatchEnd is the
// absolute offset reached by the last state that advanced.
type Result struct {
	Fields          map[string]any
	Errors          []faults.Error
	SignatureFields []string
	Summary         []string
	MatchEnd        int
	Signature       string

	advanced bool
}

func newResult() *Result {
	return &Result{
		Fields: make(map[string]any),
		Errors: []faults.Error{},
	}
}

// Bool returns the value of a boolean field, false when unset.
func (r *Result) Bool(key string) bool {
	v, _ := r.Fields[key].(bool)
	return v
}

// merge folds a state's output into the result. Scalar fields overwrite,
// list fields extend.
func (r *Result) merge(o *Output) {
	for k, v := range o.Fields {
		r.Fields[k] = mergeValue(r.Fields[k], v)
	}
	r.Errors = append(r.Errors, o.Errors...)
	for _, f := range o.SignatureFields {
		if !slices.Contains(r.SignatureFields, f) {
			r.SignatureFields = append(r.SignatureFields, f)
		}
	}
	if o.Summary != "" {
		r.Summary = append(r.Summary, o.Summary)
	}
}

func mergeValue(prev, next any) any {
	switch n := next.(type) {
	case []string:
		if p, ok := prev.([]string); ok {
			return append(append([]string{}, p...), n...)
		}
	case []any:
		if p, ok := prev.([]any); ok {
			return append(append([]any{}, p...), n...)
		}
	}
	return next
}

// sign computes the result signature from the significant fields. Unlike
// fault signatures, false values are kept: a checkpoint that was not
// reached identifies the run as much as one that was.
func (r *Result) sign() {
	r.Signature = ""
	if len(r.SignatureFields) == 0 {
		return
	}
	significant := make(map[string]any)
	for _, f := range r.SignatureFields {
		if v, ok := r.Fields[f]; ok {
			significant[f] = v
		}
	}
	if len(significant) == 0 {
		return
	}
	r.Signature = faults.GenerateSignature(significant)
}

// Map returns the result as a JSON-ready object. Keys starting with "_"
// are only kept when full is set.
func (r *Result) Map(full bool) map[string]any {
	m := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		if !full && strings.HasPrefix(k, "_") {
			continue
		}
		m[k] = v
	}
	errs := make([]any, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, faults.Fields(e, full))
	}
	m["errors"] = errs
	if full {
		m["_signature_fields"] = nonNil(r.SignatureFields)
		m["_summary"] = nonNil(r.Summary)
		if r.Signature != "" {
			m["_signature"] = r.Signature
		} else {
			m["_signature"] = nil
		}
		if r.advanced {
			m["_match_end"] = r.MatchEnd
		}
	}
	return m
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
