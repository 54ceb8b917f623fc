package ir

import (
	"vslang/src/frontend"
	"vslang/src/util"
)

// lowerer accumulates one function's flat instruction stream and local
// variable slots as it walks the AST.
type lowerer struct {
	fn     *IRFunction
	locals map[string]bool
}

// emit appends ins to the function's flat instruction stream and returns
// the corresponding Structured leaf, keeping both representations built in
// lockstep from a single call site.
func (lw *lowerer) emit(ins ...Instruction) []Node {
	lw.fn.Instructions = append(lw.fn.Instructions, ins...)
	return []Node{Straight(ins...)}
}

// LowerProgram lowers every top-level FunctionDeclaration in prog into an
// IRFunction. Non-function top-level statements do not contribute to the IR
// (spec §3: "only FunctionDeclaration at top level contributes to the IR").
func LowerProgram(prog *frontend.Program) (*IRModule, error) {
	mod := &IRModule{}
	for _, s := range prog.Statements {
		if s.Kind != frontend.StmtFunctionDecl {
			continue
		}
		fn, err := lowerFunction(s)
		if err != nil {
			return nil, err
		}
		mod.Functions = append(mod.Functions, fn)
	}
	return mod, nil
}

// lowerFunction lowers one FunctionDeclaration, including the parameter
// prologue (Load/Store round trip, spec §4.3) and the implicit return.
func lowerFunction(fd *frontend.Statement) (*IRFunction, error) {
	fn := &IRFunction{Name: fd.FuncName, Params: fd.FuncParams}
	lw := &lowerer{fn: fn, locals: map[string]bool{}}

	var paramNodes []Node
	for _, prm := range fd.FuncParams {
		lw.locals[prm] = true
		n := Seq(lw.emit(Instruction{Op: OpLoad, Name: prm}), lw.emit(Instruction{Op: OpStore, Name: prm}))
		paramNodes = append(paramNodes, n...)
	}

	bodyNodes, err := lw.lowerStmts(fd.FuncBody)
	if err != nil {
		return nil, err
	}

	var tail []Node
	if len(fn.Instructions) == 0 || fn.Instructions[len(fn.Instructions)-1].Op != OpReturn {
		tail = lw.emit(Instruction{Op: OpReturn, HasValue: false})
	}

	fn.Structured = Seq(paramNodes, bodyNodes, tail)
	fn.MaxLocals = len(lw.locals)
	fn.MaxStack = computeMaxStack(fn)
	return fn, nil
}

// lowerStmts lowers an ordered sequence of statements; blocks do not
// introduce a new scope (spec §4.3/§9), so the same lowerer/locals map is
// threaded through.
func (lw *lowerer) lowerStmts(stmts []*frontend.Statement) ([]Node, error) {
	var out []Node
	for _, s := range stmts {
		n, err := lw.lowerStmt(s)
		if err != nil {
			return nil, err
		}
		out = Seq(out, n)
	}
	return out, nil
}

func (lw *lowerer) lowerStmt(s *frontend.Statement) ([]Node, error) {
	switch s.Kind {
	case frontend.StmtLet:
		initNodes, err := lw.lowerExpr(s.LetInit)
		if err != nil {
			return nil, err
		}
		lw.locals[s.LetName] = true // a Let in an inner block reuses the enclosing slot if the name matches
		store := lw.emit(Instruction{Op: OpStore, Name: s.LetName})
		return Seq(initNodes, store), nil

	case frontend.StmtAssign:
		valNodes, err := lw.lowerExpr(s.AssignValue)
		if err != nil {
			return nil, err
		}
		store := lw.emit(Instruction{Op: OpStore, Name: s.AssignName})
		return Seq(valNodes, store), nil

	case frontend.StmtReturn:
		if !s.HasValue {
			return lw.emit(Instruction{Op: OpReturn, HasValue: false}), nil
		}
		valNodes, err := lw.lowerExpr(s.ReturnValue)
		if err != nil {
			return nil, err
		}
		ret := lw.emit(Instruction{Op: OpReturn, HasValue: true})
		return Seq(valNodes, ret), nil

	case frontend.StmtExpr:
		exprNodes, err := lw.lowerExpr(s.Expr)
		if err != nil {
			return nil, err
		}
		pop := lw.emit(Instruction{Op: OpPop})
		return Seq(exprNodes, pop), nil

	case frontend.StmtIf:
		return lw.lowerIf(s)

	case frontend.StmtWhile:
		return lw.lowerWhile(s)

	case frontend.StmtBlock:
		return lw.lowerStmts(s.Block)

	case frontend.StmtFunctionDecl:
		// Nested function declarations are not real closures (spec §4.2
		// non-goal); they lower to a degenerate name binding.
		lw.locals[s.FuncName] = true
		push := lw.emit(Instruction{Op: OpPushConst, ConstKind: ConstString, Str: s.FuncName})
		store := lw.emit(Instruction{Op: OpStore, Name: s.FuncName})
		return Seq(push, store), nil

	default:
		return nil, util.Newf(util.IRError, s.Line, 0, "unsupported statement kind %d", s.Kind)
	}
}

// lowerIf emits: lower cond; Unary(Not); JumpIf(L_else); then; Jump(L_end);
// Label(L_else); else; Label(L_end) — the branch-polarity-fixed form (spec
// §9 strategy b).
func (lw *lowerer) lowerIf(s *frontend.Statement) ([]Node, error) {
	lElse := util.NewLabel(util.LabelIfElse)
	lEnd := util.NewLabel(util.LabelIfEnd)

	condNodes, err := lw.lowerExpr(s.IfCond)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpUnary, UnOp: Not})
	lw.emit(Instruction{Op: OpJumpIf, Name: lElse})

	thenNodes, err := lw.lowerStmts(s.IfThen)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpJump, Name: lEnd})
	lw.emit(Instruction{Op: OpLabel, Name: lElse})

	var elseNodes []Node
	if s.HasElse {
		elseNodes, err = lw.lowerStmts(s.IfElse)
		if err != nil {
			return nil, err
		}
	}
	lw.emit(Instruction{Op: OpLabel, Name: lEnd})

	return []Node{{Kind: NIf, Cond: condNodes, Body: thenNodes, Else: elseNodes, HasElse: s.HasElse}}, nil
}

// lowerWhile emits: Label(L_start); lower cond; Unary(Not); JumpIf(L_end);
// body; Jump(L_start); Label(L_end).
func (lw *lowerer) lowerWhile(s *frontend.Statement) ([]Node, error) {
	lStart := util.NewLabel(util.LabelWhileStart)
	lEnd := util.NewLabel(util.LabelWhileEnd)

	lw.emit(Instruction{Op: OpLabel, Name: lStart})
	condNodes, err := lw.lowerExpr(s.WhileCond)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpUnary, UnOp: Not})
	lw.emit(Instruction{Op: OpJumpIf, Name: lEnd})

	bodyNodes, err := lw.lowerStmts(s.WhileBody)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpJump, Name: lStart})
	lw.emit(Instruction{Op: OpLabel, Name: lEnd})

	return []Node{{Kind: NWhile, Cond: condNodes, Body: bodyNodes}}, nil
}

// lowerExpr lowers an expression, returning its Structured form. Flat
// instructions are appended to lw.fn.Instructions as a side effect of emit.
func (lw *lowerer) lowerExpr(e *frontend.Expression) ([]Node, error) {
	switch e.Kind {
	case frontend.ExprNumber:
		return lw.emit(Instruction{Op: OpPushConst, ConstKind: ConstNumber, Number: e.Number}), nil
	case frontend.ExprString:
		return lw.emit(Instruction{Op: OpPushConst, ConstKind: ConstString, Str: e.Str}), nil
	case frontend.ExprBoolean:
		return lw.emit(Instruction{Op: OpPushConst, ConstKind: ConstBoolean, Boolean: e.Boolean}), nil
	case frontend.ExprNull:
		return lw.emit(Instruction{Op: OpPushConst, ConstKind: ConstNull}), nil
	case frontend.ExprIdentifier:
		return lw.emit(Instruction{Op: OpLoad, Name: e.Identifier}), nil

	case frontend.ExprCall:
		var argNodes []Node
		for _, a := range e.CallArgs {
			n, err := lw.lowerExpr(a) // arguments lower strictly left-to-right (spec §4.3)
			if err != nil {
				return nil, err
			}
			argNodes = append(argNodes, n...)
		}
		call := lw.emit(Instruction{Op: OpCall, CallName: e.CallName, ArgCount: len(e.CallArgs)})
		return Seq(argNodes, call), nil

	case frontend.ExprUnary:
		sub, err := lw.lowerExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		op := Neg
		if e.UnOp == frontend.OpNot {
			op = Not
		}
		un := lw.emit(Instruction{Op: OpUnary, UnOp: op})
		return Seq(sub, un), nil

	case frontend.ExprBinary:
		switch e.BinOp {
		case frontend.OpAnd:
			return lw.lowerShortCircuit(e, And)
		case frontend.OpOr:
			return lw.lowerShortCircuit(e, Or)
		default:
			left, err := lw.lowerExpr(e.Left)
			if err != nil {
				return nil, err
			}
			right, err := lw.lowerExpr(e.Right)
			if err != nil {
				return nil, err
			}
			bin := lw.emit(Instruction{Op: OpBinary, BinOp: mapBinOp(e.BinOp)})
			return Seq(left, right, bin), nil
		}

	case frontend.ExprConditional:
		return lw.lowerConditional(e)

	default:
		return nil, util.Newf(util.IRError, e.Line, 0, "unsupported expression kind %d", e.Kind)
	}
}

// lowerShortCircuit implements the canonical, bug-fixed && and || patterns
// (spec §4.3/§9). The Structured form carries the semantic Left/Right
// sub-trees directly rather than replaying the dup/jump/pop bytecode — the
// Wasm backend reconstructs short-circuit evaluation using Wasm's own
// value-producing `if`.
//
//	&&: lower L; Dup; JumpIf(cont); Jump(end); Label(cont); Pop; lower R; Label(end)
//	||: lower L; Dup; JumpIf(cont); Pop; lower R; Jump(end); Label(cont); Label(end)
func (lw *lowerer) lowerShortCircuit(e *frontend.Expression, op BinOp) ([]Node, error) {
	cont := util.NewLabel(util.LabelCont)
	end := util.NewLabel(util.LabelShortEnd)

	leftNodes, err := lw.lowerExpr(e.Left)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpDup})
	lw.emit(Instruction{Op: OpJumpIf, Name: cont})

	var rightNodes []Node
	if op == And {
		lw.emit(Instruction{Op: OpJump, Name: end})
		lw.emit(Instruction{Op: OpLabel, Name: cont})
		lw.emit(Instruction{Op: OpPop})
		rightNodes, err = lw.lowerExpr(e.Right)
		if err != nil {
			return nil, err
		}
		lw.emit(Instruction{Op: OpLabel, Name: end})
	} else {
		lw.emit(Instruction{Op: OpPop})
		rightNodes, err = lw.lowerExpr(e.Right)
		if err != nil {
			return nil, err
		}
		lw.emit(Instruction{Op: OpJump, Name: end})
		lw.emit(Instruction{Op: OpLabel, Name: cont})
		lw.emit(Instruction{Op: OpLabel, Name: end})
	}

	return []Node{{Kind: NShortCircuit, ShortOp: op, Left: leftNodes, Right: rightNodes}}, nil
}

// lowerConditional lowers a ternary the same way as an If, but as a
// value-producing expression (spec §4.3).
func (lw *lowerer) lowerConditional(e *frontend.Expression) ([]Node, error) {
	lElse := util.NewLabel(util.LabelIfElse)
	lEnd := util.NewLabel(util.LabelIfEnd)

	condNodes, err := lw.lowerExpr(e.CondC)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpUnary, UnOp: Not})
	lw.emit(Instruction{Op: OpJumpIf, Name: lElse})

	thenNodes, err := lw.lowerExpr(e.CondT)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpJump, Name: lEnd})
	lw.emit(Instruction{Op: OpLabel, Name: lElse})

	elseNodes, err := lw.lowerExpr(e.CondE)
	if err != nil {
		return nil, err
	}
	lw.emit(Instruction{Op: OpLabel, Name: lEnd})

	return []Node{{Kind: NIf, IsExpr: true, Cond: condNodes, Body: thenNodes, Else: elseNodes, HasElse: true}}, nil
}

func mapBinOp(op frontend.BinaryOp) BinOp {
	switch op {
	case frontend.OpAdd:
		return Add
	case frontend.OpSub:
		return Sub
	case frontend.OpMul:
		return Mul
	case frontend.OpDiv:
		return Div
	case frontend.OpMod:
		return Mod
	case frontend.OpEq:
		return Eq
	case frontend.OpNeq:
		return Neq
	case frontend.OpLt:
		return Lt
	case frontend.OpLe:
		return Le
	case frontend.OpGt:
		return Gt
	case frontend.OpGe:
		return Ge
	default:
		return Add
	}
}

// computeMaxStack simulates the operand-stack depth across fn's flat
// instruction stream and returns the high-water mark, used as a sizing hint
// by the backends.
func computeMaxStack(fn *IRFunction) int {
	depth, max := 0, 0
	track := func(delta int) {
		depth += delta
		if depth > max {
			max = depth
		}
	}
	for _, ins := range fn.Instructions {
		switch ins.Op {
		case OpPop:
			track(-1)
		case OpDup:
			track(1)
		case OpPushConst, OpLoad:
			track(1)
		case OpStore, OpJumpIf:
			track(-1)
		case OpBinary:
			track(-1) // pop 2, push 1
		case OpUnary:
			// pop 1, push 1: no net change, but value still occupies a slot
		case OpCall:
			track(-ins.ArgCount + 1)
		case OpReturn:
			if ins.HasValue {
				track(-1)
			}
		}
	}
	if max < 1 {
		max = 1
	}
	return max
}
