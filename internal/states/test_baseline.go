package states

import (
	"regexp"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const testBaselineModule = "test_baseline"

// baselineTagPattern marks both ends of the baseline test output.
var baselineTagPattern = regexp.MustCompile(regexp.QuoteMeta("/opt/kernelci/dmesg.sh"))

// detectBaselineErrors parses the output of the baseline dmesg test.
func detectBaselineErrors(text string) *parser.Output {
	out := parser.NewOutput("test.baseline.start")
	start := baselineTagPattern.FindStringIndex(text)
	if start == nil {
		out.Set("test.baseline.start", false)
		out.Summary = "Baseline test not started"
		out.AdvanceTo(len(text))
		return out
	}
	out.Set("test.baseline.start", true)
	out.Summary = "Baseline test started"

	testStart, testEnd := start[1], len(text)
	if end := baselineTagPattern.FindStringIndex(text[testStart:]); end != nil {
		testEnd = testStart + end[1]
	}
	out.AdvanceTo(testEnd)
	out.Errors = faults.FindAll(text[testStart:testEnd], faults.FindBaselineError)
	return out
}

func registerTestBaseline(reg *parser.Registry) error {
	return reg.RegisterState(testBaselineModule, "test_baseline", parser.StateSpec{
		Name:        "Baseline test",
		Description: "KernelCI baseline dmesg test",
		Func:        detectBaselineErrors,
	})
}
