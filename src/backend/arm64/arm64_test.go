package arm64

import (
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

func TestGenerateEmitsAppleDialectPrologue(t *testing.T) {
	text := generate(t, `function main() { return 1; }`)

	assert.Contains(t, text, ".global _main")
	assert.Contains(t, text, "stp\tfp, lr, [sp, #-16]!")
	assert.Contains(t, text, "mov\tfp, sp")
}

func TestGenerateUsesPageAddressingForConstants(t *testing.T) {
	text := generate(t, `function main() { return 3.5; }`)
	assert.Contains(t, text, "@PAGE")
	assert.Contains(t, text, "@PAGEOFF")
	assert.Contains(t, text, "adrp\tx0,")
}

func TestGenerateModCallsRuntimeHelper(t *testing.T) {
	text := generate(t, `function main() { return 7 % 3; }`)
	assert.Contains(t, text, "bl\t_vslang_fmod")
}

func TestGenerateCallUsesUnderscorePrefixedLabel(t *testing.T) {
	text := generate(t, `
		function add(a, b) { return a + b; }
		function main() { return add(1, 2); }
	`)
	assert.Contains(t, text, ".global _add")
	assert.Contains(t, text, "bl\t_add")
}

func TestGenerateRejectsCallWithMoreThanEightArguments(t *testing.T) {
	var instrs []ir.Instruction
	for i := 0; i < 9; i++ {
		instrs = append(instrs, ir.Instruction{Op: ir.OpPushConst, ConstKind: ir.ConstNumber, Number: float64(i)})
	}
	instrs = append(instrs,
		ir.Instruction{Op: ir.OpCall, CallName: "sink", ArgCount: 9},
		ir.Instruction{Op: ir.OpReturn, HasValue: true},
	)
	fn := &ir.IRFunction{Name: "main", Instructions: instrs}
	_, err := Generate(&ir.IRModule{Functions: []*ir.IRFunction{fn}})
	require.Error(t, err)
}

func TestGenerateRejectsTooManyParameters(t *testing.T) {
	params := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	fn := &ir.IRFunction{Name: "toomany", Params: params, Instructions: []ir.Instruction{
		{Op: ir.OpPushConst, ConstKind: ir.ConstNumber, Number: 0},
		{Op: ir.OpReturn, HasValue: true},
	}}
	_, err := Generate(&ir.IRModule{Functions: []*ir.IRFunction{fn}})
	require.Error(t, err)
}
