// Package parser loads log parser definitions into state machines and runs
// them over log text.
package parser

import (
	"bytes"
	"encoding/json"

	"github.com/kernelci/logspec/internal/logging"
)

// Parse runs the state machine starting at start over log and returns the
// accumulated result. The log is consumed left to right: each state sees
// the text after the point where the previous state advanced.
func Parse(log string, start *State) *Result {
	res := newResult()
	offset := 0
	for state := start; state != nil; {
		logging.Debug("running state", "state", state.Key, "offset", offset)
		out := state.Run(log)
		res.merge(out)
		if end, ok := out.MatchEnd(); ok {
			end = min(max(end, 0), len(log))
			offset += end
			log = log[end:]
			res.MatchEnd = offset
			res.advanced = true
		}
		state = state.Next(res)
	}
	res.sign()
	logging.Debug("parse done", "errors", len(res.Errors), "signature", res.Signature)
	return res
}

// Format renders a result as indented JSON with sorted keys.
func Format(res *Result, full bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(res.Map(full)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
