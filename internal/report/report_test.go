package report

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

const panicLog = `[    1.200000] Kernel panic - not syncing: VFS: Unable to mount root fs
[    1.200200] Hardware name: BCM2835
[    1.200600] ---[ end Kernel panic - not syncing: VFS: Unable to mount root fs ]---
`

func TestRender_NoErrors(t *testing.T) {
	res := &parser.Result{
		Fields: map[string]any{
			"bootloader.done":   true,
			"linux.boot.prompt": false,
			"_hidden":           "x",
		},
		Signature: "0123456789abcdef",
	}

	out := ansi.Strip(Render(res, Options{Parser: "generic_linux_boot"}))

	assert.Contains(t, out, "logspec: generic_linux_boot")
	assert.Contains(t, out, "bootloader.done    ✓ yes")
	assert.Contains(t, out, "linux.boot.prompt  ✗ no")
	assert.Contains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "No errors found")
	assert.NotContains(t, out, "_hidden")
}

func TestRender_Errors(t *testing.T) {
	found := faults.FindAll(panicLog, faults.FindKernelError)
	require.Len(t, found, 1)
	res := &parser.Result{
		Fields:  map[string]any{"linux.boot.prompt": false},
		Errors:  found,
		Summary: []string{"Linux boot prompt not found"},
	}

	out := ansi.Strip(Render(res, Options{Verbose: true}))

	assert.Contains(t, out, "Errors (1)")
	assert.Contains(t, out, "1. linux.kernel.panic VFS: Unable to mount root fs")
	assert.Contains(t, out, "hardware: BCM2835")
	assert.Contains(t, out, "• Linux boot prompt not found")
	assert.Contains(t, out, "│ [")
	assert.Contains(t, out, "Kernel panic - not syncing")
	assert.Contains(t, out, "signature: "+found[0].Signature())
}

func TestRender_NotVerbose(t *testing.T) {
	found := faults.FindAll(panicLog, faults.FindKernelError)
	res := &parser.Result{Fields: map[string]any{}, Errors: found, Summary: []string{"hidden summary"}}

	out := ansi.Strip(Render(res, Options{}))

	assert.NotContains(t, out, "hidden summary")
	assert.NotContains(t, out, "│ [")
}

func TestRender_Width(t *testing.T) {
	res := &parser.Result{
		Fields: map[string]any{"note": strings.Repeat("long value ", 20)},
	}

	out := ansi.Strip(Render(res, Options{Width: 60}))
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, ansi.StringWidth(line), 60, line)
	}
}

func TestFormatField(t *testing.T) {
	assert.Equal(t, "a, b", formatField([]any{"a", "b"}))
	assert.Equal(t, "1266:3", formatField("1266:3"))
}
