package states

import (
	"regexp"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const testKselftestModule = "test_kselftest"

var (
	// kselftestScriptPattern matches the call to the kselftest runner.
	kselftestScriptPattern = regexp.MustCompile(regexp.QuoteMeta("kselftest.sh"))

	// kselftestResultPattern matches a kselftest result line.
	// Format: not ok 1 selftests: exec: execveat # exit=1
	kselftestResultPattern = regexp.MustCompile(`(?:not )?ok \d+ selftests:.*`)
)

// detectKselftestErrors parses a kselftest run, from the runner call to
// the last result line.
func detectKselftestErrors(text string) *parser.Output {
	out := parser.NewOutput("test.kselftest.script_call", "test.kselftest.start")
	call := kselftestScriptPattern.FindStringIndex(text)
	if call == nil {
		out.Set("test.kselftest.script_call", false)
		out.Set("test.kselftest.start", false)
		out.Summary = "Kselftest runner not called"
		out.AdvanceTo(len(text))
		return out
	}
	out.Set("test.kselftest.script_call", true)

	testStart := call[1]
	results := kselftestResultPattern.FindAllStringIndex(text[testStart:], -1)
	if len(results) == 0 {
		out.Set("test.kselftest.start", false)
		out.Summary = "Kselftest runner called, no results"
		out.AdvanceTo(len(text))
		return out
	}
	out.Set("test.kselftest.start", true)
	out.Summary = "Kselftest run found"

	testEnd := testStart + results[len(results)-1][1]
	out.AdvanceTo(testEnd)
	out.Errors = faults.FindAll(text[testStart:testEnd], faults.FindKselftestError)
	return out
}

func registerTestKselftest(reg *parser.Registry) error {
	return reg.RegisterState(testKselftestModule, "test_kselftest", parser.StateSpec{
		Name:        "Kselftest",
		Description: "Linux kselftest run",
		Func:        detectKselftestErrors,
	})
}
