package x86

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslang/src/frontend"
	"vslang/src/ir"
)

func generate(t *testing.T, src string) string {
	t.Helper()
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	mod, err := ir.LowerProgram(prog)
	require.NoError(t, err)
	text, err := Generate(mod)
	require.NoError(t, err)
	return text
}

// generateErr is generate's sibling for cases that are expected to fail
// code generation itself (the parse/lower stages must still succeed).
func generateErr(t *testing.T, src string) (string, error) {
	t.Helper()
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	mod, err := ir.LowerProgram(prog)
	require.NoError(t, err)
	return Generate(mod)
}

func TestGenerateEmitsATTMnemonicsForEveryFunction(t *testing.T) {
	text := generate(t, `
		function add(a, b) { return a + b; }
		function main() { return add(1, 2); }
	`)

	assert.Contains(t, text, ".global add")
	assert.Contains(t, text, ".global main")
	assert.Contains(t, text, "add:\n")
	assert.Contains(t, text, "main:\n")
	// AT&T syntax: source operand first, register operands prefixed with %.
	assert.Contains(t, text, "movq\t%rsp, %rbp")
	assert.Contains(t, text, "addsd\t%xmm1, %xmm0")
}

func TestGenerateCallPassesArgumentsInSystemVRegisters(t *testing.T) {
	text := generate(t, `
		function add(a, b) { return a + b; }
		function main() { return add(1, 2); }
	`)
	assert.Contains(t, text, "call\tadd")
	// Two args: popped in reverse into rsi then rdi.
	idx := strings.Index(text, "call\tadd")
	require.Greater(t, idx, 0)
	before := text[:idx]
	assert.Contains(t, before, "popq\t%rsi")
	assert.Contains(t, before, "popq\t%rdi")
}

func TestGenerateModCallsRuntimeHelper(t *testing.T) {
	text := generate(t, `function main() { return 7 % 3; }`)
	assert.Contains(t, text, "call\tvslang_fmod")
}

func TestGenerateStringLiteralGoesToRodata(t *testing.T) {
	text := generate(t, `function main() { return "hello"; }`)
	assert.Contains(t, text, ".section .rodata")
	assert.Contains(t, text, ".string \"hello\"")
}

func TestGenerateRejectsCallWithMoreThanSixArguments(t *testing.T) {
	_, err := generateErr(t, `
		function sum7(a, b, c, d, e, f, g) { return a; }
		function main() { return sum7(1, 2, 3, 4, 5, 6, 7); }
	`)
	require.Error(t, err)
}

func TestGenerateRejectsUnknownInstruction(t *testing.T) {
	mod := &ir.IRModule{Functions: []*ir.IRFunction{{
		Name:         "bad",
		Instructions: []ir.Instruction{{Op: ir.OpKind(999)}},
	}}}
	_, err := Generate(mod)
	require.Error(t, err)
}
