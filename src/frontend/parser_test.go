package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFunctionDeclaration(t *testing.T) {
	prog, err := Parse(`function add(a, b) { return a + b; }`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)

	fn := prog.Statements[0]
	require.Equal(t, StmtFunctionDecl, fn.Kind)
	assert.Equal(t, "add", fn.FuncName)
	assert.Equal(t, []string{"a", "b"}, fn.FuncParams)
	require.Len(t, fn.FuncBody, 1)
	assert.Equal(t, StmtReturn, fn.FuncBody[0].Kind)
}

// TestParsePrecedence checks that `1 + 2 * 3` binds as `1 + (2 * 3)`, not
// `(1 + 2) * 3`, by walking the resulting tree shape.
func TestParsePrecedence(t *testing.T) {
	prog, err := Parse(`function f() { return 1 + 2 * 3; }`)
	require.NoError(t, err)

	ret := prog.Statements[0].FuncBody[0]
	top := ret.ReturnValue
	require.Equal(t, ExprBinary, top.Kind)
	assert.Equal(t, OpAdd, top.BinOp)
	assert.Equal(t, ExprNumber, top.Left.Kind)
	assert.Equal(t, float64(1), top.Left.Number)

	right := top.Right
	require.Equal(t, ExprBinary, right.Kind)
	assert.Equal(t, OpMul, right.BinOp)
	assert.Equal(t, float64(2), right.Left.Number)
	assert.Equal(t, float64(3), right.Right.Number)
}

// TestParseComparisonBindsTighterThanEquality checks `a < b == c < d` parses
// as `(a < b) == (c < d)`.
func TestParseComparisonBindsTighterThanEquality(t *testing.T) {
	prog, err := Parse(`function f() { return a < b == c < d; }`)
	require.NoError(t, err)

	top := prog.Statements[0].FuncBody[0].ReturnValue
	require.Equal(t, ExprBinary, top.Kind)
	assert.Equal(t, OpEq, top.BinOp)
	assert.Equal(t, OpLt, top.Left.BinOp)
	assert.Equal(t, OpLt, top.Right.BinOp)
}

// TestParseLogicalPrecedence checks `a || b && c` parses as `a || (b && c)`,
// since && binds tighter than ||.
func TestParseLogicalPrecedence(t *testing.T) {
	prog, err := Parse(`function f() { return a || b && c; }`)
	require.NoError(t, err)

	top := prog.Statements[0].FuncBody[0].ReturnValue
	require.Equal(t, ExprBinary, top.Kind)
	assert.Equal(t, OpOr, top.BinOp)
	assert.Equal(t, ExprIdentifier, top.Left.Kind)
	require.Equal(t, ExprBinary, top.Right.Kind)
	assert.Equal(t, OpAnd, top.Right.BinOp)
}

// TestParseTernaryRightAssociative checks `a ? b : c ? d : e` parses as
// `a ? b : (c ? d : e)`.
func TestParseTernaryRightAssociative(t *testing.T) {
	prog, err := Parse(`function f() { return a ? b : c ? d : e; }`)
	require.NoError(t, err)

	top := prog.Statements[0].FuncBody[0].ReturnValue
	require.Equal(t, ExprConditional, top.Kind)
	require.Equal(t, ExprConditional, top.CondE.Kind)
}

func TestParseUnaryRightAssociative(t *testing.T) {
	prog, err := Parse(`function f() { return !!a; }`)
	require.NoError(t, err)

	top := prog.Statements[0].FuncBody[0].ReturnValue
	require.Equal(t, ExprUnary, top.Kind)
	assert.Equal(t, OpNot, top.UnOp)
	require.Equal(t, ExprUnary, top.Expr.Kind)
	assert.Equal(t, OpNot, top.Expr.UnOp)
}

func TestParseCallArgumentsPreserveOrder(t *testing.T) {
	prog, err := Parse(`function f() { return g(1, 2, 3); }`)
	require.NoError(t, err)

	top := prog.Statements[0].FuncBody[0].ReturnValue
	require.Equal(t, ExprCall, top.Kind)
	assert.Equal(t, "g", top.CallName)
	require.Len(t, top.CallArgs, 3)
	assert.Equal(t, float64(1), top.CallArgs[0].Number)
	assert.Equal(t, float64(2), top.CallArgs[1].Number)
	assert.Equal(t, float64(3), top.CallArgs[2].Number)
}

func TestParseIfElseIfChain(t *testing.T) {
	prog, err := Parse(`function f() {
		if (a) { return 1; } else if (b) { return 2; } else { return 3; }
	}`)
	require.NoError(t, err)

	ifStmt := prog.Statements[0].FuncBody[0]
	require.Equal(t, StmtIf, ifStmt.Kind)
	require.True(t, ifStmt.HasElse)
	require.Len(t, ifStmt.IfElse, 1)
	assert.Equal(t, StmtIf, ifStmt.IfElse[0].Kind)
}

func TestParseUnexpectedTokenFails(t *testing.T) {
	_, err := Parse(`function f() { return ); }`)
	require.Error(t, err)
}

func TestParseMissingSemicolonFails(t *testing.T) {
	_, err := Parse(`function f() { let x = 1 }`)
	require.Error(t, err)
}

// TestParseIsDeterministic checks that parsing the same source twice
// produces structurally identical trees (spec §8's parse determinism
// property).
func TestParseIsDeterministic(t *testing.T) {
	src := `function f(a, b) { return a * b + (a - b) / 2; }`
	p1, err := Parse(src)
	require.NoError(t, err)
	p2, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
