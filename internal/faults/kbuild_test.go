package faults

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compilerErrorLog = `  CC [M]  drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.o
drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.c: In function ‘build_registry’:
drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.c:1266:3: error: label at end of compound statement
 1266 |   default:
      |   ^~~~~~~
make[6]: *** [scripts/Makefile.build:244: drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.o] Error 1
make[5]: *** [scripts/Makefile.build:485: drivers/gpu/drm/nouveau/nvkm/subdev/gsp] Error 2
`

const modpostErrorLog = `  MODPOST Module.symvers
ERROR: modpost: module binfmt_misc uses symbol d_drop from namespace ANDROID_GKI_VFS_EXPORT_ONLY, but does not import it.
ERROR: modpost: module binfmt_misc uses symbol dentry_open from namespace ANDROID_GKI_VFS_EXPORT_ONLY, but does not import it.
make[2]: *** [scripts/Makefile.modpost:145: Module.symvers] Error 1
make[1]: *** [/tmp/kci/linux/Makefile:1875: modpost] Error 2
`

func TestFindKbuildError_CompilerError(t *testing.T) {
	e, end, ok := FindKbuildError(compilerErrorLog)
	require.True(t, ok)

	compiler, isCompiler := e.(*KbuildCompilerError)
	require.True(t, isCompiler, "got %T", e)
	assert.Equal(t, "kbuild.compiler.error", compiler.Type())
	assert.Equal(t, "label at end of compound statement", compiler.Summary())
	assert.Equal(t, "drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.c", compiler.SrcFile)
	assert.Equal(t, "1266:3", compiler.Location)
	assert.Equal(t, "drivers/gpu/drm/nouveau/nvkm/subdev/gsp/r535.o", compiler.Target)
	assert.Equal(t, "scripts/Makefile.build:244", compiler.Script)
	assert.Equal(t, "f52d7999f9ded27717012935140f31c2d2ddffe8", compiler.Signature())

	firstMake := strings.Index(compilerErrorLog, "make[6]")
	secondMake := strings.Index(compilerErrorLog, "make[5]")
	assert.Equal(t, secondMake-1, end, "end should be right after the first make line")
	assert.Greater(t, end, firstMake)
}

func TestFindKbuildError_CompilerBlockAfterTarget(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantType     string
		wantSummary  string
		wantSrcFile  string
		wantLocation string
	}{
		{
			name: "Fatal error in included header",
			input: `  CC      kernel/bounds.s
In file included from kernel/bounds.c:13:
./include/linux/log2.h:5:10: fatal error: linux/bitops.h: No such file or directory
make[2]: *** [scripts/Makefile.build:117: kernel/bounds.s] Error 1
`,
			wantType:     "kbuild.compiler.fatal_error",
			wantSummary:  "linux/bitops.h: No such file or directory",
			wantSrcFile:  "./include/linux/log2.h",
			wantLocation: "5:10",
		},
		{
			name: "Linker error",
			input: `  LD      drivers/foo/bar.o
ld: drivers/foo/bar.o: in function ` + "`probe'" + `:
bar.c:(.text+0x10): undefined reference to ` + "`missing_symbol'" + `
make[4]: *** [scripts/Makefile.build:480: drivers/foo/bar.o] Error 1
`,
			wantType:     "kbuild.compiler.linker_error",
			wantSummary:  "undefined reference to `missing_symbol'",
			wantSrcFile:  "drivers/foo/bar.c",
			wantLocation: ".text+0x10",
		},
		{
			name: "Nothing recognizable after target",
			input: `  CC      lib/foo.o
make[3]: *** [scripts/Makefile.build:229: lib/foo.o] Error 1
`,
			wantType: "kbuild.compiler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, ok := FindKbuildError(tt.input)
			require.True(t, ok)
			compiler, isCompiler := e.(*KbuildCompilerError)
			require.True(t, isCompiler, "got %T", e)
			assert.Equal(t, tt.wantType, compiler.Type())
			assert.Equal(t, tt.wantSummary, compiler.Summary())
			assert.Equal(t, tt.wantSrcFile, compiler.SrcFile)
			assert.Equal(t, tt.wantLocation, compiler.Location)
		})
	}
}

func TestFindKbuildError_Modpost(t *testing.T) {
	e, _, ok := FindKbuildError(modpostErrorLog)
	require.True(t, ok)

	modpost, isModpost := e.(*KbuildModpostError)
	require.True(t, isModpost, "got %T", e)
	assert.Equal(t, "kbuild.modpost", modpost.Type())
	assert.Equal(t, "Module.symvers", modpost.Target)
	assert.Equal(t,
		"module binfmt_misc uses symbol d_drop from namespace ANDROID_GKI_VFS_EXPORT_ONLY, but does not import it. "+
			"module binfmt_misc uses symbol dentry_open from namespace ANDROID_GKI_VFS_EXPORT_ONLY, but does not import it.",
		modpost.Summary())
	assert.Equal(t, []string{"error_type", "error_summary", "target"}, modpost.SignatureFields())
	assert.NotEmpty(t, modpost.Signature())
}

func TestFindKbuildError_Process(t *testing.T) {
	input := `*** The present kernel configuration has modules disabled.
*** To use the module feature, please run "make menuconfig" etc
*** to enable CONFIG_MODULES.
***
make[1]: *** [/tmp/kci/linux/Makefile:1920: modules] Error 1
`
	e, _, ok := FindKbuildError(input)
	require.True(t, ok)

	process, isProcess := e.(*KbuildProcessError)
	require.True(t, isProcess, "got %T", e)
	assert.Equal(t, "kbuild.make", process.Type())
	assert.Equal(t, "modules", process.Target)
	assert.Equal(t, `The present kernel configuration has modules disabled. To use the module feature, please run "make menuconfig" etc to enable CONFIG_MODULES.`, process.Summary())
}

func TestFindKbuildError_Other(t *testing.T) {
	input := `  SYNC    include/config/auto.conf
***
*** Can't find default configuration "arch/riscv/configs/nommu_k210_defconfig"!
***
make[2]: *** [scripts/kconfig/Makefile:94: nommu_k210_defconfig] Error 1
`
	e, _, ok := FindKbuildError(input)
	require.True(t, ok)

	other, isOther := e.(*KbuildGenericError)
	require.True(t, isOther, "got %T", e)
	assert.Equal(t, "kbuild.other", other.Type())
	assert.Equal(t, "nommu_k210_defconfig", other.Target)
	assert.Equal(t, `Can't find default configuration "arch/riscv/configs/nommu_k210_defconfig"!`, other.Summary())
}

func TestFindKbuildError_Unknown(t *testing.T) {
	input := "  Kernel: arch/arm64/boot/Image.gz is ready\nmake: *** No rule to make target 'Image'.  Stop.\n"

	e, end, ok := FindKbuildError(input)
	require.True(t, ok)

	_, isUnknown := e.(*KbuildUnknownError)
	require.True(t, isUnknown, "got %T", e)
	assert.Equal(t, "kbuild.unknown", e.Type())
	assert.Equal(t, "No rule to make target 'Image'.  Stop.", e.Summary())
	assert.Equal(t, []string{"error_type", "error_summary"}, e.SignatureFields())
	assert.Equal(t, len(input)-1, end)
}

func TestFindKbuildError_NoFailure(t *testing.T) {
	_, _, ok := FindKbuildError("  CC      kernel/fork.o\n  LD      vmlinux\n")
	assert.False(t, ok)
}

func TestFindKbuildError_Deterministic(t *testing.T) {
	first, _, ok := FindKbuildError(compilerErrorLog)
	require.True(t, ok)
	second, _, ok := FindKbuildError(compilerErrorLog)
	require.True(t, ok)

	assert.Equal(t, Fields(first, true), Fields(second, true))
}

func TestIsCompilerTarget(t *testing.T) {
	tests := []struct {
		name   string
		target string
		before string
		want   bool
	}{
		{name: "Object file", target: "drivers/foo.o", want: true},
		{name: "Assembly file", target: "kernel/bounds.s", want: true},
		{name: "Basename used as diagnostic prefix", target: "arch/x86/boot/setup.elf", before: "setup.ld:12: syntax error\n", want: true},
		{name: "Module list", target: "modules", before: "modules disabled\n", want: false},
		{name: "Defconfig", target: "tinyconfig", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCompilerTarget("scripts/Makefile.build:244", tt.target, tt.before))
		})
	}
}
