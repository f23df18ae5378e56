package states

import (
	"regexp"
	"strings"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const genericBootModule = "generic_boot"

// bootloaderEndPattern matches the last line a bootloader prints before
// handing over to the kernel.
var bootloaderEndPattern = regexp.MustCompile(strings.Join([]string{
	regexp.QuoteMeta("Starting kernel ..."),
	"jumping to kernel",
	regexp.QuoteMeta("Booting from ROM..."),
	faults.LinuxTimestamp + ` Booting Linux`,
	faults.LinuxTimestamp + ` Linux version`,
}, "|"))

// detectBootloaderEnd looks for the bootloader to kernel handover.
func detectBootloaderEnd(text string) *parser.Output {
	out := parser.NewOutput("bootloader.done")
	loc := bootloaderEndPattern.FindStringIndex(text)
	if loc == nil {
		out.Set("bootloader.done", false)
		out.Summary = "Bootloader stage not finished"
		out.AdvanceTo(len(text))
		return out
	}
	out.Set("bootloader.done", true)
	out.Summary = "Bootloader stage done, jump to kernel"
	out.AdvanceTo(loc[1])
	return out
}

func registerGenericBoot(reg *parser.Registry) error {
	if err := reg.RegisterState(genericBootModule, "generic_boot", parser.StateSpec{
		Name:        "Generic boot",
		Description: "Bootloader stage up to the jump to the kernel",
		Func:        detectBootloaderEnd,
	}); err != nil {
		return err
	}
	return reg.RegisterTransition(genericBootModule, "bootloader_done", func(r *parser.Result) bool {
		return r.Bool("bootloader.done")
	})
}
