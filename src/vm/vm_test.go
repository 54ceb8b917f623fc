package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslang/src/frontend"
	"vslang/src/ir"
)

func run(t *testing.T, src string) Value {
	t.Helper()
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	mod, err := ir.LowerProgram(prog)
	require.NoError(t, err)
	result, err := New(mod).RunMain()
	require.NoError(t, err)
	return result
}

func TestFibonacciRecursion(t *testing.T) {
	result := run(t, `
		function fibonacci(n) {
			if (n <= 1) { return n; }
			return fibonacci(n - 1) + fibonacci(n - 2);
		}
		function main() { return fibonacci(10); }
	`)
	require.Equal(t, VNumber, result.Kind)
	assert.Equal(t, float64(55), result.Number)
}

func TestLogicalAndEvaluation(t *testing.T) {
	result := run(t, `
		function main() { return (1 < 2) && (3 > 2); }
	`)
	require.Equal(t, VBoolean, result.Kind)
	assert.True(t, result.Bool)
}

func TestWhileLoopSumsToFive(t *testing.T) {
	result := run(t, `
		function main() {
			let sum = 0;
			let i = 1;
			while (i <= 5) {
				sum = sum + i;
				i = i + 1;
			}
			return sum;
		}
	`)
	require.Equal(t, VNumber, result.Kind)
	assert.Equal(t, float64(15), result.Number)
}

func TestStringCoercionOnAdd(t *testing.T) {
	result := run(t, `
		function main() { return "x=" + 42; }
	`)
	require.Equal(t, VString, result.Kind)
	assert.Equal(t, "x=42", result.Str)
}

func TestDivisionByZeroYieldsNaN(t *testing.T) {
	result := run(t, `
		function main() { return 1 / 0; }
	`)
	require.Equal(t, VNumber, result.Kind)
	assert.True(t, result.Number != result.Number, "expected NaN")
}

func TestArithmeticPrecedence(t *testing.T) {
	result := run(t, `
		function main() { return 5 + 3 * 2; }
	`)
	require.Equal(t, VNumber, result.Kind)
	assert.Equal(t, float64(11), result.Number)
}

// TestShortCircuitAndSkipsRightOperand checks that when the left operand of
// && is falsy, the right operand is never evaluated: calling an undefined
// function there would otherwise surface as a runtime error.
func TestShortCircuitAndSkipsRightOperand(t *testing.T) {
	result := run(t, `
		function main() { return false && undefinedFunction() == 1; }
	`)
	require.Equal(t, VBoolean, result.Kind)
	assert.False(t, result.Bool)
}

// TestShortCircuitOrSkipsRightOperand mirrors the && case for ||: a truthy
// left operand must short-circuit past the right operand entirely.
func TestShortCircuitOrSkipsRightOperand(t *testing.T) {
	result := run(t, `
		function main() { return true || undefinedFunction() == 1; }
	`)
	require.Equal(t, VBoolean, result.Kind)
	assert.True(t, result.Bool)
}

func TestTernaryConditional(t *testing.T) {
	result := run(t, `
		function main() { return 1 < 2 ? "yes" : "no"; }
	`)
	require.Equal(t, VString, result.Kind)
	assert.Equal(t, "yes", result.Str)
}

func TestModuloOperator(t *testing.T) {
	result := run(t, `
		function main() { return 7 % 3; }
	`)
	require.Equal(t, VNumber, result.Kind)
	assert.Equal(t, float64(1), result.Number)
}

func TestValueStringer(t *testing.T) {
	assert.Equal(t, "42", Number(42).String())
	assert.Equal(t, "true", Boolean(true).String())
	assert.Equal(t, "null", Null.String())
}
