// Package x86 emits AT&T-syntax x86-64 assembly text from an ir.IRModule.
// Grounded on original_source/src/codegen/mod.rs for prologue/epilogue and
// register conventions (deliberately re-expressed in AT&T syntax per the
// spec's named headline target, diverging from the original's Intel
// syntax) and the teacher's util.Writer emission helpers. AT&T operand
// order is source, destination.
package x86

import (
	"fmt"
	"strconv"

	"vslang/src/backend/regfile"
	"vslang/src/backend/xtoa"
	"vslang/src/ir"
	"vslang/src/util"
)

// argRegs are the System V AMD64 integer/pointer argument registers, first
// six parameters (spec §4.5).
var argRegs = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

// calleeSaved is pushed/popped around every function body.
var calleeSaved = regfile.File{
	SP: regfile.NewReg(4, regfile.Int, "%rsp"),
	FP: regfile.NewReg(5, regfile.Int, "%rbp"),
	CalleeSaved: []regfile.Register{
		regfile.NewReg(3, regfile.Int, "%rbx"),
		regfile.NewReg(12, regfile.Int, "%r12"),
		regfile.NewReg(13, regfile.Int, "%r13"),
		regfile.NewReg(14, regfile.Int, "%r14"),
		regfile.NewReg(15, regfile.Int, "%r15"),
	},
}

// Generate emits AT&T x86-64 assembly text for every function in mod.
func Generate(mod *ir.IRModule) (string, error) {
	w := util.Writer{}
	g := &gen{w: &w, strings: map[string]string{}}

	w.WriteString(".text\n")
	for _, fn := range mod.Functions {
		w.Write(".global %s\n", fn.Name)
	}
	w.WriteString("\n")

	for _, fn := range mod.Functions {
		if err := g.function(fn); err != nil {
			return "", err
		}
	}

	if len(g.stringData) > 0 {
		w.WriteString("\n.section .rodata\n")
		w.WriteString(g.stringData)
	}

	return w.String(), nil
}

type gen struct {
	w          *util.Writer
	fn         *ir.IRFunction
	slots      map[string]int // local name -> negative byte offset from %rbp
	nextSlot   int
	strings    map[string]string // literal -> label, deduplicated
	stringData string
	stringSeq  int
}

func (g *gen) function(fn *ir.IRFunction) error {
	g.fn = fn
	g.slots = map[string]int{}
	g.nextSlot = 0

	frameSize := align16(8 * (fn.MaxLocals + fn.MaxStack + 2))

	g.w.Label(fn.Name)
	g.w.Ins1("pushq", "%rbp")
	g.w.Ins2("movq", "%rsp", "%rbp")
	g.w.Ins2("subq", fmt.Sprintf("$%d", frameSize), "%rsp")
	for _, r := range calleeSaved.CalleeSaved {
		g.w.Ins1("pushq", r.String())
	}

	for i, p := range fn.Params {
		slot := g.slotFor(p)
		if i < len(argRegs) {
			g.w.Ins2("movq", argRegs[i], rbpOff(slot))
		} else {
			stackOff := 16 + 8*(i-len(argRegs))
			g.w.LoadStore("movq", "%rax", stackOff, "%rbp")
			g.w.Ins2("movq", "%rax", rbpOff(slot))
		}
	}

	for _, ins := range fn.Instructions {
		if err := g.instruction(ins); err != nil {
			return err
		}
	}

	return nil
}

// slotFor returns the (allocating if new) stack-frame byte offset for local
// name, relative to %rbp.
func (g *gen) slotFor(name string) int {
	if off, ok := g.slots[name]; ok {
		return off
	}
	g.nextSlot += 8
	off := -g.nextSlot
	g.slots[name] = off
	return off
}

// rbpOff renders a byte offset as AT&T `N(%rbp)` memory operand text.
func rbpOff(n int) string {
	return xtoa.ItoA(n) + "(%rbp)"
}

func (g *gen) instruction(ins ir.Instruction) error {
	switch ins.Op {
	case ir.OpPop:
		g.w.Ins2("addq", "$8", "%rsp")
	case ir.OpDup:
		g.w.Ins2("movq", "(%rsp)", "%rax")
		g.w.Ins1("pushq", "%rax")
	case ir.OpPushConst:
		g.pushConst(ins)
	case ir.OpLoad:
		off := g.slotFor(ins.Name)
		g.w.LoadStore("movq", "%rax", off, "%rbp")
		g.w.Ins1("pushq", "%rax")
	case ir.OpStore:
		off := g.slotFor(ins.Name)
		g.w.Ins1("popq", "%rax")
		g.w.Ins2("movq", "%rax", rbpOff(off))
	case ir.OpBinary:
		g.binary(ins.BinOp)
	case ir.OpUnary:
		g.unary(ins.UnOp)
	case ir.OpLabel:
		g.w.Label(ins.Name)
	case ir.OpJump:
		g.w.Ins1("jmp", ins.Name)
	case ir.OpJumpIf:
		g.w.Ins1("popq", "%rax")
		g.w.Ins2("cmpq", "$0", "%rax")
		g.w.Ins1("jne", ins.Name)
	case ir.OpCall:
		if err := g.call(ins); err != nil {
			return err
		}
	case ir.OpReturn:
		g.ret(ins)
	default:
		return util.Newf(util.CodeGenError, 0, 0, "x86: unsupported instruction %d", ins.Op)
	}
	return nil
}

func (g *gen) pushConst(ins ir.Instruction) {
	switch ins.ConstKind {
	case ir.ConstNumber:
		lbl := g.constLabel(strconv.FormatFloat(ins.Number, 'g', -1, 64))
		g.w.Ins2("movsd", fmt.Sprintf("%s(%%rip)", lbl), "%xmm0")
		g.w.Ins2("subq", "$8", "%rsp")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
	case ir.ConstString:
		lbl := g.stringLabel(ins.Str)
		g.w.Ins2("leaq", fmt.Sprintf("%s(%%rip)", lbl), "%rax")
		g.w.Ins1("pushq", "%rax")
	case ir.ConstBoolean:
		v := 0
		if ins.Boolean {
			v = 1
		}
		g.w.Ins1("pushq", fmt.Sprintf("$%d", v))
	default:
		g.w.Ins1("pushq", "$0")
	}
}

func (g *gen) constLabel(lit string) string {
	if lbl, ok := g.strings[lit]; ok {
		return lbl
	}
	lbl := fmt.Sprintf(".LC%d", g.stringSeq)
	g.stringSeq++
	g.strings[lit] = lbl
	g.stringData += fmt.Sprintf("%s:\n\t.double %s\n", lbl, lit)
	return lbl
}

func (g *gen) stringLabel(s string) string {
	key := "str:" + s
	if lbl, ok := g.strings[key]; ok {
		return lbl
	}
	lbl := fmt.Sprintf(".LS%d", g.stringSeq)
	g.stringSeq++
	g.strings[key] = lbl
	g.stringData += fmt.Sprintf("%s:\n\t.string %q\n", lbl, s)
	return lbl
}

// binary pops two doubles into xmm1/xmm0, applies the arithmetic mnemonic,
// and pushes xmm0 (spec §4.5). Comparisons use ucomisd+setXX.
func (g *gen) binary(op ir.BinOp) {
	g.w.Ins2("movsd", "(%rsp)", "%xmm1")
	g.w.Ins2("addq", "$8", "%rsp")
	g.w.Ins2("movsd", "(%rsp)", "%xmm0")

	switch op {
	case ir.Add:
		g.w.Ins2("addsd", "%xmm1", "%xmm0")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
		return
	case ir.Sub:
		g.w.Ins2("subsd", "%xmm1", "%xmm0")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
		return
	case ir.Mul:
		g.w.Ins2("mulsd", "%xmm1", "%xmm0")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
		return
	case ir.Div:
		g.w.Ins2("divsd", "%xmm1", "%xmm0")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
		return
	case ir.Mod:
		g.w.Comment("%% lowers to fmod: call runtime helper, xmm0/xmm1 hold the operands")
		g.w.Ins1("call", "vslang_fmod")
		g.w.Ins2("movsd", "%xmm0", "(%rsp)")
		return
	}

	g.w.Ins2("ucomisd", "%xmm1", "%xmm0")
	set := map[ir.BinOp]string{ir.Eq: "sete", ir.Neq: "setne", ir.Lt: "setb", ir.Le: "setbe", ir.Gt: "seta", ir.Ge: "setae"}[op]
	g.w.Ins1(set, "%al")
	g.w.Ins2("movzbq", "%al", "%rax")
	g.w.Ins2("movq", "%rax", "(%rsp)")
}

func (g *gen) unary(op ir.UnOp) {
	switch op {
	case ir.Neg:
		g.w.Ins2("movsd", "(%rsp)", "%xmm0")
		g.w.Ins2("xorpd", "%xmm1", "%xmm1")
		g.w.Ins2("subsd", "%xmm0", "%xmm1")
		g.w.Ins2("movsd", "%xmm1", "(%rsp)")
	case ir.Not:
		g.w.Ins1("popq", "%rax")
		g.w.Ins2("cmpq", "$0", "%rax")
		g.w.Ins1("sete", "%al")
		g.w.Ins2("movzbq", "%al", "%rax")
		g.w.Ins1("pushq", "%rax")
	}
}

// call pops exactly ArgCount arguments in last-pushed-first order into
// argRegs (reconstructing the left-to-right argument vector the lowering
// pushed, spec §9), calls, and pushes %rax as the result (spec §4.5). Calls
// with more than 6 arguments would need a stack-passing convention the
// lowering's flat push sequence doesn't prepare for (the 7th+ argument
// would need to be left on the call stack, not in a register); rather than
// silently pop the wrong operands into argRegs, such calls are rejected.
// Declarations with more than 6 parameters are still accepted: function()
// reads the 7th and later parameters from the caller's stack frame.
func (g *gen) call(ins ir.Instruction) error {
	n := ins.ArgCount
	if n > len(argRegs) {
		return util.Newf(util.CodeGenError, 0, 0,
			"x86: call to %s passes %d arguments, exceeds the 6 System V integer argument registers", ins.CallName, n)
	}
	for i := n - 1; i >= 0; i-- {
		g.w.Ins1("popq", argRegs[i])
	}
	g.w.Ins1("call", ins.CallName)
	g.w.Ins1("pushq", "%rax")
	return nil
}

func (g *gen) ret(ins ir.Instruction) {
	if ins.HasValue {
		g.w.Ins1("popq", "%rax")
	} else {
		g.w.Ins2("xorq", "%rax", "%rax")
	}
	for i := len(calleeSaved.CalleeSaved) - 1; i >= 0; i-- {
		g.w.Ins1("popq", calleeSaved.CalleeSaved[i].String())
	}
	g.w.Ins2("movq", "%rbp", "%rsp")
	g.w.Ins1("popq", "%rbp")
	g.w.WriteString("\tret\n")
}

func align16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}
