package wasm

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

// countBalanced reports whether open and close occur in equal, non-negative
// running counts in text (a cheap parenthesis-balance check for the
// hand-emitted WAT text, since there is no wasm parser in this module).
func countBalanced(t *testing.T, text string) {
	t.Helper()
	depth := 0
	for _, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		require.GreaterOrEqual(t, depth, 0, "unbalanced parens in generated WAT")
	}
	assert.Equal(t, 0, depth, "unbalanced parens in generated WAT")
}

func TestGenerateProducesWellFormedModule(t *testing.T) {
	text := generate(t, `
		function fibonacci(n) {
			if (n <= 1) { return n; }
			return fibonacci(n - 1) + fibonacci(n - 2);
		}
		function main() { return fibonacci(10); }
	`)

	require.True(t, strings.HasPrefix(text, "(module\n"))
	require.True(t, strings.HasSuffix(text, ")\n"))
	countBalanced(t, text)

	assert.Equal(t, 1, strings.Count(text, `(export "main" (func $main))`))
	assert.Contains(t, text, "(func $fibonacci")
	assert.Contains(t, text, "(func $main")
}

func TestGenerateWhileLoopUsesStructuredBlockLoop(t *testing.T) {
	text := generate(t, `
		function main() {
			let i = 0;
			while (i < 3) { i = i + 1; }
			return i;
		}
	`)
	assert.Contains(t, text, "(block $while_end")
	assert.Contains(t, text, "(loop $while_start")
	assert.Contains(t, text, "br_if $while_end")
	assert.Contains(t, text, "br $while_start")
	countBalanced(t, text)
}

func TestGenerateShortCircuitAndUsesStructuredIf(t *testing.T) {
	text := generate(t, `function main() { return 1 < 2 && 3 > 2; }`)
	assert.Contains(t, text, "(if (result i64)")
	countBalanced(t, text)
}

func TestGenerateStringLiteralGoesToLinearMemory(t *testing.T) {
	text := generate(t, `function main() { return "hi"; }`)
	assert.Contains(t, text, `(data (i32.const 0) "hi")`)
}

func TestGenerateModUsesTruncFormula(t *testing.T) {
	text := generate(t, `function main() { return 7 % 3; }`)
	assert.Contains(t, text, "f64.trunc")
	assert.Contains(t, text, "f64.sub")
}

func TestGenerateNoExportWithoutMain(t *testing.T) {
	text := generate(t, `function helper() { return 1; }`)
	assert.NotContains(t, text, "(export \"main\"")
}
