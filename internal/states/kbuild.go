package states

import (
	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const kbuildModule = "kbuild"

// detectKbuildError reports the make failure that stopped a kernel build.
// There is no checkpoint: the whole text is the build log.
func detectKbuildError(text string) *parser.Output {
	out := parser.NewOutput()
	out.AdvanceTo(len(text))
	e, _, ok := faults.FindKbuildError(text)
	if !ok {
		out.Summary = "No build errors found"
		return out
	}
	out.Errors = append(out.Errors, e)
	out.Summary = "Build failed: " + e.Type()
	return out
}

func registerKbuild(reg *parser.Registry) error {
	return reg.RegisterState(kbuildModule, "kbuild_start", parser.StateSpec{
		Name:        "Kbuild",
		Description: "Kernel build log",
		Func:        detectKbuildError,
	})
}
