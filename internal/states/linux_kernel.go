package states

import (
	"regexp"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const linuxKernelModule = "linux_kernel"

var (
	// kernelStartPattern matches the kernel version banner or any line
	// starting with a kernel timestamp. The first timestamped line is
	// already proof of a running kernel, so banners such as "Booting Linux"
	// need no pattern of their own.
	kernelStartPattern = regexp.MustCompile(`(?m)Linux version|^` + faults.LinuxTimestamp + ` `)

	// promptPattern matches the shell prompt of the booted system.
	promptPattern = regexp.MustCompile(regexp.QuoteMeta("/ #"))
)

// detectLinuxPrompt parses the kernel boot up to the first shell prompt.
// Kernel errors are searched before the prompt, or in the whole text if
// the prompt never shows up.
func detectLinuxPrompt(text string) *parser.Output {
	out := parser.NewOutput("linux.boot.kernel_started", "linux.boot.prompt")
	window := text
	if loc := promptPattern.FindStringIndex(text); loc != nil {
		window = text[:loc[0]]
		out.Set("linux.boot.prompt", true)
		out.Summary = "Linux boot prompt found"
		out.AdvanceTo(loc[1])
	} else {
		out.Set("linux.boot.prompt", false)
		out.Summary = "Linux boot prompt not found"
		out.AdvanceTo(len(text))
	}
	out.Set("linux.boot.kernel_started", kernelStartPattern.MatchString(window))
	out.Errors = faults.FindAll(window, faults.FindKernelError)
	return out
}

func registerLinuxKernel(reg *parser.Registry) error {
	states := []struct {
		name string
		spec parser.StateSpec
	}{
		{"kernel_load", parser.StateSpec{
			Name:        "Linux kernel load",
			Description: "Kernel boot up to the shell prompt",
			Func:        detectLinuxPrompt,
		}},
		{"kernel_stage2_load", parser.StateSpec{
			Name:        "Linux kernel load (stage 2)",
			Description: "Second kernel boot, e.g. after a kexec",
			Func:        detectLinuxPrompt,
		}},
	}
	for _, s := range states {
		if err := reg.RegisterState(linuxKernelModule, s.name, s.spec); err != nil {
			return err
		}
	}
	if err := reg.RegisterTransition(linuxKernelModule, "kernel_started", func(r *parser.Result) bool {
		return r.Bool("linux.boot.kernel_started")
	}); err != nil {
		return err
	}
	return reg.RegisterTransition(linuxKernelModule, "prompt_found", func(r *parser.Result) bool {
		return r.Bool("linux.boot.prompt")
	})
}
