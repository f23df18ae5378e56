package faults

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptySignatureWhenNothingExtracted(t *testing.T) {
	e := newKbuildUnknownError()
	e.ErrorType = ""
	Parse(e, "")
	assert.Equal(t, "", e.Signature())
}

func TestParse_SkipsEmptyFields(t *testing.T) {
	withAddress := newNullPointerDereference()
	Parse(withAddress, "[    1.0] Unable to handle kernel NULL pointer dereference at virtual address 0000000000000008")
	withoutAddress := newNullPointerDereference()
	Parse(withoutAddress, "[    1.0] Unable to handle kernel NULL pointer dereference")

	require.NotEmpty(t, withAddress.Signature())
	require.NotEmpty(t, withoutAddress.Signature())
	assert.NotEqual(t, withAddress.Signature(), withoutAddress.Signature())

	expected := GenerateSignature(map[string]any{
		"error_type":    "linux.kernel.null_pointer_dereference",
		"error_summary": "Unable to handle kernel NULL pointer dereference",
	})
	assert.Equal(t, expected, withoutAddress.Signature())
}

func TestParse_BugSignatureIgnoresLocation(t *testing.T) {
	a := newKernelBug()
	Parse(a, "[    1.0] BUG: sleeping function called from invalid context at kernel/locking/mutex.c:283")
	b := newKernelBug()
	Parse(b, "[    2.0] BUG: sleeping function called from invalid context at kernel/locking/rwsem.c:1525")

	assert.NotEqual(t, a.Location, b.Location)
	assert.Equal(t, []string{"error_type", "error_summary"}, a.SignatureFields())
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, GenerateSignature(map[string]any{
		"error_type":    "linux.kernel.bug",
		"error_summary": "sleeping function called from invalid context",
	}), a.Signature())
}

func TestParse_SignatureIgnoresNonSignatureFields(t *testing.T) {
	a := newKernelPanic()
	Parse(a, "[    1.0] Kernel panic - not syncing: Attempted to kill init!\n[    1.1] Hardware name: board-a\n")
	b := newKernelPanic()
	Parse(b, "[    9.0] Kernel panic - not syncing: Attempted to kill init!\n[    9.1] Hardware name: board-b\n")

	assert.NotEqual(t, a.Hardware, b.Hardware)
	assert.Equal(t, a.Signature(), b.Signature())
}

func TestFields(t *testing.T) {
	e := newKselftestError()
	Parse(e, "not ok 7 selftests: net: tls\n")

	visible := Fields(e, false)
	assert.Equal(t, map[string]any{
		"error_type":    "linux.kselftest",
		"error_summary": "not ok 7 selftests: net: tls",
	}, visible)

	full := Fields(e, true)
	assert.Equal(t, e.Signature(), full["_signature"])
	assert.Equal(t, "not ok 7 selftests: net: tls", full["_report"])
	assert.Equal(t, []any{"error_type", "error_summary"}, full["_signature_fields"])
}

func TestFindAll_StopsWhenNothingFound(t *testing.T) {
	assert.Empty(t, FindAll("", FindKernelError))
	assert.Empty(t, FindAll("plain text\n", FindKernelError))
}
