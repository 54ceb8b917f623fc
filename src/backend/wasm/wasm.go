// Package wasm emits WebAssembly text format (WAT) from an ir.IRModule.
// Unlike the other two backends, it walks ir.IRFunction.Structured rather
// than the flat Instructions stream: Wasm's control-flow instructions
// (block/loop/br/br_if/if) are structured and cannot soundly represent
// the VM-oriented Label/Jump/JumpIf stream directly (spec §4.7/§9 — the
// grounded original_source/src/codegen/wasm.rs translates Label/Jump/
// JumpIf one-for-one into (block ...)/br/br_if, which does not nest
// correctly for anything but the most trivial control flow).
//
// Every value is an i64, numbers round-tripped through
// i64.reinterpret_f64/f64.reinterpret_i64 (grounded on
// original_source/src/codegen/wasm.rs's Constant::Number and
// BinaryOp::Div handling) for consistency with the VM and the other two
// backends' double semantics.
package wasm

import (
	"fmt"
	"strings"

	"vslang/src/ir"
	"vslang/src/util"
)

// Generate emits a WebAssembly text module for mod.
func Generate(mod *ir.IRModule) (string, error) {
	var sb strings.Builder
	sb.WriteString("(module\n")
	sb.WriteString("(import \"console\" \"log\" (func $log (param i64)))\n")
	sb.WriteString("(memory 1)\n")

	g := &gen{strings: map[string]int{}}
	funcText := make([]string, len(mod.Functions))
	for i, fn := range mod.Functions {
		text, err := g.function(fn)
		if err != nil {
			return "", err
		}
		funcText[i] = text
	}

	for i, s := range g.stringOrder {
		sb.WriteString(fmt.Sprintf("(data (i32.const %d) %q)\n", i*8, s))
	}

	for _, text := range funcText {
		sb.WriteString(text)
	}

	hasMain := false
	for _, fn := range mod.Functions {
		if fn.Name == "main" {
			hasMain = true
		}
	}
	if hasMain {
		sb.WriteString("(export \"main\" (func $main))\n")
	}

	sb.WriteString(")\n")
	return sb.String(), nil
}

type gen struct {
	sb          strings.Builder
	locals      map[string]int
	localSeq    int
	tmpIdx      int
	tmp2Idx     int
	strings     map[string]int // literal -> linear-memory slot index
	stringOrder []string
}

// function allocates locals sequentially by first appearance (params first,
// then every Load or Store name seen walking the flat instruction stream in
// order), then emits a structured (func ...) form from fn.Structured.
func (g *gen) function(fn *ir.IRFunction) (string, error) {
	g.sb = strings.Builder{}
	g.locals = map[string]int{}
	g.localSeq = 0

	for _, p := range fn.Params {
		g.allocLocal(p)
	}
	for _, ins := range fn.Instructions {
		if ins.Op == ir.OpStore || ins.Op == ir.OpLoad {
			g.allocLocal(ins.Name)
		}
	}
	g.tmpIdx = g.localSeq
	g.localSeq++
	g.tmp2Idx = g.localSeq
	g.localSeq++

	var header strings.Builder
	header.WriteString(fmt.Sprintf("(func $%s ", fn.Name))
	for i := range fn.Params {
		header.WriteString(fmt.Sprintf("(param $l%d i64) ", i))
	}
	header.WriteString("(result i64)\n")
	for i := len(fn.Params); i < g.localSeq; i++ {
		header.WriteString(fmt.Sprintf("(local $l%d i64)\n", i))
	}

	if err := g.nodes(fn.Structured); err != nil {
		return "", err
	}
	header.WriteString(g.sb.String())
	header.WriteString("i64.const 0\nreturn\n)\n")
	return header.String(), nil
}

func (g *gen) allocLocal(name string) int {
	if idx, ok := g.locals[name]; ok {
		return idx
	}
	idx := g.localSeq
	g.locals[name] = idx
	g.localSeq++
	return idx
}

func (g *gen) write(format string, args ...interface{}) {
	g.sb.WriteString(fmt.Sprintf(format, args...))
}

func (g *gen) nodes(ns []ir.Node) error {
	for _, n := range ns {
		if err := g.node(n); err != nil {
			return err
		}
	}
	return nil
}

func (g *gen) node(n ir.Node) error {
	switch n.Kind {
	case ir.NStraight:
		for _, ins := range n.Instructions {
			if err := g.instruction(ins); err != nil {
				return err
			}
		}
	case ir.NSeq:
		return g.nodes(n.Children)
	case ir.NIf:
		if err := g.nodes(n.Cond); err != nil {
			return err
		}
		g.write("i64.const 0\ni64.ne\n")
		if n.IsExpr {
			g.write("(if (result i64)\n(then\n")
		} else {
			g.write("(if\n(then\n")
		}
		if err := g.nodes(n.Body); err != nil {
			return err
		}
		if n.HasElse {
			g.write(")\n(else\n")
			if err := g.nodes(n.Else); err != nil {
				return err
			}
		} else if n.IsExpr {
			g.write(")\n(else\ni64.const 0\n")
		}
		g.write("))\n")
	case ir.NWhile:
		g.write("(block $while_end\n(loop $while_start\n")
		if err := g.nodes(n.Cond); err != nil {
			return err
		}
		g.write("i64.eqz\nbr_if $while_end\n")
		if err := g.nodes(n.Body); err != nil {
			return err
		}
		g.write("br $while_start\n))\n")
	case ir.NShortCircuit:
		// Left's value is preserved in a tmp local so the non-evaluated
		// side of && / || can push back the actual operand (matching the
		// flat lowering's Dup/JumpIf/Pop pattern) instead of a hardcoded
		// placeholder.
		if err := g.nodes(n.Left); err != nil {
			return err
		}
		g.write("local.tee $l%d\n", g.tmpIdx)
		g.write("i64.const 0\ni64.ne\n")
		if n.ShortOp == ir.And {
			g.write("(if (result i64)\n(then\n")
			if err := g.nodes(n.Right); err != nil {
				return err
			}
			g.write(fmt.Sprintf(")\n(else\nlocal.get $l%d\n))\n", g.tmpIdx))
		} else {
			g.write("(if (result i64)\n(then\nlocal.get $l%d\n)\n(else\n", g.tmpIdx)
			if err := g.nodes(n.Right); err != nil {
				return err
			}
			g.write("))\n")
		}
	}
	return nil
}

func (g *gen) instruction(ins ir.Instruction) error {
	switch ins.Op {
	case ir.OpPop:
		g.write("drop\n")
	case ir.OpDup:
		g.write("local.tee $l%d\n", g.tmpIdx)
		g.write("local.get $l%d\n", g.tmpIdx)
	case ir.OpPushConst:
		g.pushConst(ins)
	case ir.OpLoad:
		g.write("local.get $l%d\n", g.allocLocal(ins.Name))
	case ir.OpStore:
		g.write("local.set $l%d\n", g.allocLocal(ins.Name))
	case ir.OpBinary:
		g.binary(ins.BinOp)
	case ir.OpUnary:
		g.unary(ins.UnOp)
	case ir.OpCall:
		g.write("call $%s ;; args: %d\n", ins.CallName, ins.ArgCount)
	case ir.OpReturn:
		if !ins.HasValue {
			g.write("i64.const 0\n")
		}
		g.write("return\n")
	case ir.OpLabel, ir.OpJump, ir.OpJumpIf:
		// The flat stream's labels/jumps are superseded entirely by the
		// structured block/loop/if forms built above; they are not
		// walked for this backend (only NStraight leaves reach here, and
		// lowering never puts Label/Jump/JumpIf inside an NStraight run).
		return util.Newf(util.CodeGenError, 0, 0, "wasm: unexpected control-flow instruction %d in a straight-line run", ins.Op)
	default:
		return util.Newf(util.CodeGenError, 0, 0, "wasm: unsupported instruction %d", ins.Op)
	}
	return nil
}

func (g *gen) pushConst(ins ir.Instruction) {
	switch ins.ConstKind {
	case ir.ConstNumber:
		g.write("f64.const %v\n", ins.Number)
		g.write("i64.reinterpret_f64\n")
	case ir.ConstString:
		idx := g.stringSlot(ins.Str)
		g.write("i64.const %d\n", idx*8)
	case ir.ConstBoolean:
		v := 0
		if ins.Boolean {
			v = 1
		}
		g.write("i64.const %d\n", v)
	default:
		g.write("i64.const 0\n")
	}
}

func (g *gen) stringSlot(s string) int {
	if idx, ok := g.strings[s]; ok {
		return idx
	}
	idx := len(g.stringOrder)
	g.strings[s] = idx
	g.stringOrder = append(g.stringOrder, s)
	return idx
}

func (g *gen) binary(op ir.BinOp) {
	switch op {
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Mod:
		g.arith(op)
	case ir.Eq:
		g.write("i64.eq\n")
		g.write("i64.extend_i32_u\n")
	case ir.Neq:
		g.write("i64.ne\n")
		g.write("i64.extend_i32_u\n")
	case ir.Lt, ir.Le, ir.Gt, ir.Ge:
		g.cmpFloat(op)
	case ir.And:
		g.write("i64.and\n")
	case ir.Or:
		g.write("i64.or\n")
	}
}

// arith reinterprets both i64 operands back to f64, performs the float
// operation, and reinterprets the f64 result back to i64 (grounded on
// original_source/src/codegen/wasm.rs's BinaryOp::Div handling, extended
// uniformly to every arithmetic operator for double-throughout semantics).
// Mod has no native f64 opcode and is built from trunc: a % b = a -
// trunc(a/b)*b, using both tmp locals to hold the i64 bit patterns of a
// and b so each can be reinterpreted to f64 more than once.
func (g *gen) arith(op ir.BinOp) {
	// Stack on entry: ..., lhs:i64, rhs:i64
	g.write("local.set $l%d\n", g.tmp2Idx) // rhs -> tmp2
	g.write("local.set $l%d\n", g.tmpIdx)  // lhs -> tmp

	if op == ir.Mod {
		g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmpIdx)  // a
		g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmpIdx)  // a
		g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmp2Idx) // b
		g.write("f64.div\nf64.trunc\n")
		g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmp2Idx) // b
		g.write("f64.mul\n")
		g.write("f64.sub\n")
		g.write("i64.reinterpret_f64\n")
		return
	}

	g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmpIdx)  // lhs as f64
	g.write("local.get $l%d\nf64.reinterpret_i64\n", g.tmp2Idx) // rhs as f64
	switch op {
	case ir.Add:
		g.write("f64.add\n")
	case ir.Sub:
		g.write("f64.sub\n")
	case ir.Mul:
		g.write("f64.mul\n")
	case ir.Div:
		g.write("f64.div\n")
	}
	g.write("i64.reinterpret_f64\n")
}

func (g *gen) cmpFloat(op ir.BinOp) {
	g.write("local.set $l%d\n", g.tmpIdx)
	g.write("f64.reinterpret_i64\n")
	g.write("local.get $l%d\n", g.tmpIdx)
	g.write("f64.reinterpret_i64\n")
	switch op {
	case ir.Lt:
		g.write("f64.lt\n")
	case ir.Le:
		g.write("f64.le\n")
	case ir.Gt:
		g.write("f64.gt\n")
	case ir.Ge:
		g.write("f64.ge\n")
	}
	g.write("i64.extend_i32_u\n")
}

func (g *gen) unary(op ir.UnOp) {
	switch op {
	case ir.Neg:
		g.write("f64.reinterpret_i64\n")
		g.write("f64.neg\n")
		g.write("i64.reinterpret_f64\n")
	case ir.Not:
		g.write("i64.eqz\n")
		g.write("i64.extend_i32_u\n")
	}
}
