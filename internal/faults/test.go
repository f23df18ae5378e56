package faults

import (
	"regexp"
	"strings"
)

var (
	// baselineDmesgPattern matches a kernel message reported by the baseline
	// dmesg test.
	// Format: kern  :emerg : call_irq_handler: 2.55 No irq handler for vector
	baselineDmesgPattern = regexp.MustCompile(`kern  :(.*)`)

	// kselftestFailurePattern matches a failed kselftest case.
	// Format: not ok 1 selftests: exec: execveat # exit=1
	kselftestFailurePattern = regexp.MustCompile(`not ok \d+ selftests:.*`)
)

// BaselineDmesgError is a kernel message flagged by the baseline test.
type BaselineDmesgError struct {
	Base
}

func newBaselineDmesgError() *BaselineDmesgError {
	return &BaselineDmesgError{Base: newBase("test.baseline.dmesg")}
}

func (e *BaselineDmesgError) parse(text string) int {
	m := baselineDmesgPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return 0
	}
	e.ErrorSummary = strings.TrimSpace(text[m[2]:m[3]])
	e.Excerpt = text[m[0]:m[1]]
	return m[1]
}

// KselftestError is a failed kselftest case.
type KselftestError struct {
	Base
}

func newKselftestError() *KselftestError {
	return &KselftestError{Base: newBase("linux.kselftest")}
}

func (e *KselftestError) parse(text string) int {
	m := kselftestFailurePattern.FindStringIndex(text)
	if m == nil {
		return 0
	}
	e.ErrorSummary = strings.TrimSpace(text[m[0]:m[1]])
	e.Excerpt = text[m[0]:m[1]]
	return m[1]
}

// FindBaselineError returns the first baseline dmesg error in text and
// the offset where it ends.
func FindBaselineError(text string) (Error, int, bool) {
	return findSingleLine(newBaselineDmesgError(), text)
}

// FindKselftestError returns the first failed kselftest case in text and
// the offset where it ends.
func FindKselftestError(text string) (Error, int, bool) {
	return findSingleLine(newKselftestError(), text)
}

func findSingleLine(e Error, text string) (Error, int, bool) {
	end := Parse(e, text)
	if end <= 0 {
		return nil, 0, false
	}
	return e, end, true
}
